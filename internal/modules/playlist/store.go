// Package playlist stores show playlists.
package playlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/adapters/idgen"
	"github.com/mikey-austin/screener/pkg/screener"
)

// ErrNotFound reports an unknown playlist id.
var ErrNotFound = errors.New("playlist not found")

// IDGen returns unique playlist ids.
type IDGen interface {
	NewID() string
}

// Store holds playlists in memory, writing through to storage when set.
type Store struct {
	log     *zap.Logger
	storage *Storage
	ids     IDGen
	now     func() time.Time

	mu        sync.RWMutex
	playlists map[string]Record
}

// NewStore builds a store and loads every persisted playlist. storage may
// be nil for a memory-only store.
func NewStore(log *zap.Logger, storage *Storage, ids IDGen) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if ids == nil {
		ids = idgen.Generator{}
	}
	s := &Store{
		log:       log,
		storage:   storage,
		ids:       ids,
		now:       time.Now,
		playlists: map[string]Record{},
	}
	if storage != nil {
		records, err := storage.List()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load playlists: %w", err)
		}
		for _, rec := range records {
			s.playlists[rec.Playlist.UUID] = rec
		}
		log.Info("playlists loaded", zap.Int("count", len(records)))
	}
	return s, nil
}

// Insert validates contents and stores it under a new id.
func (s *Store) Insert(contents json.RawMessage) (string, error) {
	doc, err := Parse(contents)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.ids.NewID()
	for {
		if _, taken := s.playlists[id]; !taken {
			break
		}
		id = s.ids.NewID()
	}
	doc.UUID = id
	now := s.now().Unix()
	rec := Record{Playlist: doc, CreatedAt: now, UpdatedAt: now}
	if err := s.persist(rec); err != nil {
		return "", err
	}
	s.playlists[id] = rec
	return id, nil
}

// Update replaces the playlist with id. A document that fails validation
// leaves the stored version untouched.
func (s *Store) Update(id string, contents json.RawMessage) error {
	s.mu.RLock()
	_, ok := s.playlists[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	doc, err := Parse(contents)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.playlists[id]
	if !ok {
		return ErrNotFound
	}
	doc.UUID = id
	rec := Record{Playlist: doc, CreatedAt: prev.CreatedAt, UpdatedAt: s.now().Unix()}
	if err := s.persist(rec); err != nil {
		return err
	}
	s.playlists[id] = rec
	return nil
}

// Delete removes the playlist with id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playlists[id]; !ok {
		return ErrNotFound
	}
	if s.storage != nil {
		if err := s.storage.Delete(id); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete playlist: %w", err)
		}
	}
	delete(s.playlists, id)
	return nil
}

// Get returns the playlist with id.
func (s *Store) Get(id string) (screener.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.playlists[id]
	if !ok {
		return screener.Playlist{}, ErrNotFound
	}
	return clonePlaylist(rec.Playlist), nil
}

// GetMany returns the playlists with ids, failing on the first unknown id.
func (s *Store) GetMany(ids []string) ([]screener.Playlist, error) {
	out := make([]screener.Playlist, 0, len(ids))
	for _, id := range ids {
		pl, err := s.Get(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, id)
		}
		out = append(out, pl)
	}
	return out, nil
}

// IDs returns every playlist id ordered by creation time.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]Record, 0, len(s.playlists))
	for _, rec := range s.playlists {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt == records[j].CreatedAt {
			return records[i].Playlist.UUID < records[j].Playlist.UUID
		}
		return records[i].CreatedAt < records[j].CreatedAt
	})
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.Playlist.UUID)
	}
	return ids
}

func (s *Store) persist(rec Record) error {
	if s.storage == nil {
		return nil
	}
	if err := s.storage.Save(rec); err != nil {
		return fmt.Errorf("save playlist: %w", err)
	}
	return nil
}

func clonePlaylist(pl screener.Playlist) screener.Playlist {
	events := make([]screener.PlaylistEvent, len(pl.Events))
	for i, event := range pl.Events {
		if event.EditRate != nil {
			event.EditRate = append([]int(nil), event.EditRate...)
		}
		events[i] = event
	}
	pl.Events = events
	return pl
}

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.playlists[id]
	return ok
}
