package content

import (
	"sync"
	"time"

	"github.com/mikey-austin/screener/pkg/screener"
)

// JournalEntry is one persisted history transition.
type JournalEntry struct {
	IngestUUID string
	DCPPath    string
	State      string
	Timestamp  time.Time
	CPLUUIDs   []string
	Error      string
}

// HistoryJournal persists history transitions across restarts.
type HistoryJournal interface {
	Append(entry JournalEntry) error
	Load() ([]JournalEntry, error)
	Clear() error
}

type record struct {
	id       string
	path     string
	state    string
	progress int
	entries  []screener.HistoryEntry
	cplUUIDs []string
	err      string
}

func (r *record) info() screener.IngestInfo {
	entries := make([]screener.HistoryEntry, len(r.entries))
	copy(entries, r.entries)
	var cpls []string
	if len(r.cplUUIDs) > 0 {
		cpls = append(cpls, r.cplUUIDs...)
	}
	return screener.IngestInfo{
		IngestUUID: r.id,
		DCPPath:    r.path,
		State:      r.state,
		Progress:   r.progress,
		History:    entries,
		CPLUUIDs:   cpls,
		Error:      r.err,
	}
}

// History is the ingest history log.
type History struct {
	mu      sync.Mutex
	records map[string]*record
	order   []string
	journal HistoryJournal
}

// NewHistory builds an empty history. journal may be nil.
func NewHistory(journal HistoryJournal) *History {
	return &History{records: map[string]*record{}, journal: journal}
}

// Replay rebuilds the log from the journal.
func (h *History) Replay() error {
	if h.journal == nil {
		return nil
	}
	entries, err := h.journal.Load()
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, entry := range entries {
		h.applyLocked(entry)
	}
	return nil
}

// Transition records a state change. A missing record is recreated, so a
// job keeps a history even if the log was cleared while it was queued.
func (h *History) Transition(entry JournalEntry) error {
	h.mu.Lock()
	h.applyLocked(entry)
	h.mu.Unlock()

	if h.journal == nil {
		return nil
	}
	return h.journal.Append(entry)
}

func (h *History) applyLocked(entry JournalEntry) {
	rec, ok := h.records[entry.IngestUUID]
	if !ok {
		rec = &record{id: entry.IngestUUID, path: entry.DCPPath}
		h.records[entry.IngestUUID] = rec
		h.order = append(h.order, entry.IngestUUID)
	}
	if rec.path == "" {
		rec.path = entry.DCPPath
	}
	rec.state = entry.State
	rec.entries = append(rec.entries, screener.HistoryEntry{State: entry.State, Timestamp: entry.Timestamp.Unix()})
	if len(entry.CPLUUIDs) > 0 {
		rec.cplUUIDs = append([]string(nil), entry.CPLUUIDs...)
	}
	if entry.Error != "" {
		rec.err = entry.Error
	}
	if entry.State == screener.IngestDone {
		rec.progress = 100
	}
}

// SetProgress records the download percentage of a job.
func (h *History) SetProgress(id string, percent int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rec, ok := h.records[id]; ok {
		rec.progress = percent
	}
}

// Get returns the history of one job.
func (h *History) Get(id string) (screener.IngestInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[id]
	if !ok {
		return screener.IngestInfo{}, false
	}
	return rec.info(), true
}

// All returns every job in the order it was first recorded.
func (h *History) All() []screener.IngestInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]screener.IngestInfo, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.records[id].info())
	}
	return out
}

// Clear discards the log.
func (h *History) Clear() error {
	h.mu.Lock()
	h.records = map[string]*record{}
	h.order = nil
	h.mu.Unlock()

	if h.journal == nil {
		return nil
	}
	return h.journal.Clear()
}
