// Package schedule keeps the list of scheduled showings and the schedule
// mode. Entries are stored only; nothing fires them.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/adapters/idgen"
	"github.com/mikey-austin/screener/pkg/screener"
)

var (
	// ErrNotFound reports an unknown schedule id.
	ErrNotFound = errors.New("schedule not found")
	// ErrTitleNotFound reports scheduling an unknown composition.
	ErrTitleNotFound = errors.New("title not found")
	// ErrPlaylistNotFound reports scheduling an unknown playlist.
	ErrPlaylistNotFound = errors.New("playlist not found")
	// ErrInvalidMode reports an unrecognised schedule mode.
	ErrInvalidMode = errors.New("schedule mode not recognised")
)

// IDGen returns unique schedule ids.
type IDGen interface {
	NewID() string
}

// Config wires the lookups used to check scheduled items exist.
type Config struct {
	TitleExists    func(id string) bool
	PlaylistExists func(id string) bool
	IDs            IDGen
}

// Store holds schedule entries and the mode.
type Store struct {
	log    *zap.Logger
	config Config

	mu      sync.RWMutex
	entries map[string]screener.ScheduleEntry
	mode    string
}

// New builds an empty schedule in SCHEDULE mode.
func New(log *zap.Logger, cfg Config) (*Store, error) {
	if cfg.TitleExists == nil || cfg.PlaylistExists == nil {
		return nil, errors.New("schedule lookups required")
	}
	if cfg.IDs == nil {
		cfg.IDs = idgen.Generator{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:     log,
		config:  cfg,
		entries: map[string]screener.ScheduleEntry{},
		mode:    screener.ModeSchedule,
	}, nil
}

// ScheduleTitle schedules a composition to start at start (unix seconds).
func (s *Store) ScheduleTitle(cplID string, start int64) (string, error) {
	if !s.config.TitleExists(cplID) {
		return "", ErrTitleNotFound
	}
	return s.add(screener.ScheduleEntry{CPLUUID: cplID, StartTime: start}), nil
}

// SchedulePlaylist schedules a playlist to start at start (unix seconds).
func (s *Store) SchedulePlaylist(playlistID string, start int64) (string, error) {
	if !s.config.PlaylistExists(playlistID) {
		return "", ErrPlaylistNotFound
	}
	return s.add(screener.ScheduleEntry{PlaylistUUID: playlistID, StartTime: start}), nil
}

func (s *Store) add(entry screener.ScheduleEntry) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.config.IDs.NewID()
	for {
		if _, taken := s.entries[id]; !taken {
			break
		}
		id = s.config.IDs.NewID()
	}
	entry.ScheduleUUID = id
	s.entries[id] = entry
	s.log.Info("showing scheduled",
		zap.String("schedule_uuid", id),
		zap.String("cpl_uuid", entry.CPLUUID),
		zap.String("playlist_uuid", entry.PlaylistUUID),
		zap.Int64("start_time", entry.StartTime))
	return id
}

// Get returns the entry with id.
func (s *Store) Get(id string) (screener.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return screener.ScheduleEntry{}, ErrNotFound
	}
	return entry, nil
}

// GetMany returns the entries with ids, failing on the first unknown id.
func (s *Store) GetMany(ids []string) ([]screener.ScheduleEntry, error) {
	out := make([]screener.ScheduleEntry, 0, len(ids))
	for _, id := range ids {
		entry, err := s.Get(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, id)
		}
		out = append(out, entry)
	}
	return out, nil
}

// IDs returns every entry id, earliest start first.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]screener.ScheduleEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartTime == entries[j].StartTime {
			return entries[i].ScheduleUUID < entries[j].ScheduleUUID
		}
		return entries[i].StartTime < entries[j].StartTime
	})
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ScheduleUUID)
	}
	return ids
}

// Delete removes the entry with id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

// SetMode switches between SCHEDULE and MANUAL.
func (s *Store) SetMode(mode string) error {
	normalized := strings.ToUpper(strings.TrimSpace(mode))
	switch normalized {
	case screener.ModeSchedule, screener.ModeManual:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != normalized {
		s.log.Info("schedule mode changed", zap.String("from", s.mode), zap.String("to", normalized))
	}
	s.mode = normalized
	return nil
}

// Mode returns the current mode.
func (s *Store) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}
