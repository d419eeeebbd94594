// Package historydb persists the ingest history journal in SQLite.
package historydb

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mikey-austin/screener/internal/modules/content"
)

//go:embed schema.sql
var schema string

// Store is an append-only journal of ingest state transitions.
type Store struct {
	db   *sql.DB
	path string
}

var _ content.HistoryJournal = (*Store)(nil)

// Open creates or opens the journal at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records one transition.
func (s *Store) Append(entry content.JournalEntry) error {
	var cpls any
	if len(entry.CPLUUIDs) > 0 {
		raw, err := json.Marshal(entry.CPLUUIDs)
		if err != nil {
			return fmt.Errorf("marshal cpl uuids: %w", err)
		}
		cpls = string(raw)
	}
	var errMsg any
	if entry.Error != "" {
		errMsg = entry.Error
	}
	return retryOnBusy(func() error {
		_, err := s.db.Exec(
			`INSERT INTO ingest_history (ingest_uuid, dcp_path, state, ts_unix_ns, cpl_uuids, error)
             VALUES (?, ?, ?, ?, ?, ?)`,
			entry.IngestUUID, entry.DCPPath, entry.State, entry.Timestamp.UnixNano(), cpls, errMsg,
		)
		if err != nil {
			return fmt.Errorf("insert history: %w", err)
		}
		return nil
	})
}

// Load returns every transition in the order it was appended.
func (s *Store) Load() ([]content.JournalEntry, error) {
	rows, err := s.db.Query(
		`SELECT ingest_uuid, dcp_path, state, ts_unix_ns, cpl_uuids, error
         FROM ingest_history ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []content.JournalEntry
	for rows.Next() {
		var (
			entry  content.JournalEntry
			ts     int64
			cpls   sql.NullString
			errMsg sql.NullString
		)
		if err := rows.Scan(&entry.IngestUUID, &entry.DCPPath, &entry.State, &ts, &cpls, &errMsg); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.Timestamp = time.Unix(0, ts).UTC()
		if cpls.Valid && cpls.String != "" {
			if err := json.Unmarshal([]byte(cpls.String), &entry.CPLUUIDs); err != nil {
				return nil, fmt.Errorf("decode cpl uuids for %s: %w", entry.IngestUUID, err)
			}
		}
		entry.Error = errMsg.String
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Clear discards the journal.
func (s *Store) Clear() error {
	return retryOnBusy(func() error {
		if _, err := s.db.Exec(`DELETE FROM ingest_history`); err != nil {
			return fmt.Errorf("clear history: %w", err)
		}
		return nil
	})
}
