package content

import (
	"sort"
	"sync"
	"time"

	"github.com/mikey-austin/screener/internal/dcp"
	"github.com/mikey-austin/screener/pkg/screener"
)

// Title is an ingested composition with its own directory of hard-linked
// assets. Titles are immutable once published.
type Title struct {
	ID         string
	CPL        *dcp.CPL
	Dir        string
	IngestedAt time.Time
}

// Info returns the wire description of the title.
func (t *Title) Info() screener.CPL {
	info := t.CPL.Info()
	info.IngestedAt = t.IngestedAt.Unix()
	return info
}

// Store holds the published titles keyed by composition id.
type Store struct {
	mu     sync.RWMutex
	titles map[string]*Title
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{titles: map[string]*Title{}}
}

// Publish adds titles under one lock so readers never observe part of a
// package. Ids already present are left untouched. It returns the ids added.
func (s *Store) Publish(titles ...*Title) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]string, 0, len(titles))
	for _, title := range titles {
		if _, ok := s.titles[title.ID]; ok {
			continue
		}
		s.titles[title.ID] = title
		added = append(added, title.ID)
	}
	return added
}

// Has reports whether id is published.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.titles[id]
	return ok
}

// Get returns the title with id.
func (s *Store) Get(id string) (*Title, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	title, ok := s.titles[id]
	return title, ok
}

// IDs returns every title id ordered by ingest time.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	titles := make([]*Title, 0, len(s.titles))
	for _, title := range s.titles {
		titles = append(titles, title)
	}
	sort.Slice(titles, func(i, j int) bool {
		if titles[i].IngestedAt.Equal(titles[j].IngestedAt) {
			return titles[i].ID < titles[j].ID
		}
		return titles[i].IngestedAt.Before(titles[j].IngestedAt)
	})
	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		ids = append(ids, title.ID)
	}
	return ids
}

// Len returns the number of published titles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.titles)
}
