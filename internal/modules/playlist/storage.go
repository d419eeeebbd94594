package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mikey-austin/screener/pkg/screener"
)

// Storage persists playlists as one JSON file each.
type Storage struct {
	root string
	mu   sync.Mutex
}

// NewStorage creates a storage at root.
func NewStorage(root string) (*Storage, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage path required")
	}
	return &Storage{root: root}, nil
}

// Record is a playlist as stored on disk.
type Record struct {
	Playlist  screener.Playlist `json:"playlist"`
	CreatedAt int64             `json:"createdAt"`
	UpdatedAt int64             `json:"updatedAt"`
}

func (s *Storage) playlistPath(id string) string {
	return filepath.Join(s.root, safeFilename(id)+".json")
}

// List returns every stored playlist ordered by creation time.
func (s *Storage) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(s.root, "*.json"))
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(paths))
	for _, path := range paths {
		var rec Record
		if err := readJSON(path, &rec); err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt == records[j].CreatedAt {
			return records[i].Playlist.UUID < records[j].Playlist.UUID
		}
		return records[i].CreatedAt < records[j].CreatedAt
	})
	return records, nil
}

// Save writes a playlist to disk.
func (s *Storage) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}
	return writeJSON(s.playlistPath(rec.Playlist.UUID), rec)
}

// Delete removes a stored playlist.
func (s *Storage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return os.Remove(s.playlistPath(id))
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func safeFilename(id string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_", " ", "_")
	return replacer.Replace(id)
}
