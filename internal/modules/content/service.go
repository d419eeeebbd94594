// Package content holds the ingested titles and the pipeline that pulls
// packages from a distribution server into the store.
package content

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/dcp"
	"github.com/mikey-austin/screener/internal/jobqueue"
	"github.com/mikey-austin/screener/pkg/screener"
)

var (
	// ErrTitleNotFound reports an unknown composition id.
	ErrTitleNotFound = errors.New("title not found")
	// ErrInvalidTitle reports a title whose files fail validation.
	ErrInvalidTitle = errors.New("invalid title")
	// ErrIngestNotFound reports an unknown ingest job.
	ErrIngestNotFound = errors.New("ingest not found")
	// ErrInvalidRequest reports an ingest request without a path.
	ErrInvalidRequest = errors.New("invalid ingest request")
)

// Notifier receives ingest events.
type Notifier interface {
	IngestProgress(evt screener.IngestProgressEvent)
	IngestState(evt screener.IngestStateEvent)
}

type nopNotifier struct{}

func (nopNotifier) IngestProgress(screener.IngestProgressEvent) {}
func (nopNotifier) IngestState(screener.IngestStateEvent)       {}

// Job is a queued ingest request with its resolved connection.
type Job struct {
	DCPPath    string
	Connection screener.ConnectionDetails
}

// Config configures the content service.
type Config struct {
	IncomingPath string
	AssetsPath   string
	IngestPath   string
	// Connection is used when a request carries no connection details.
	Connection screener.ConnectionDetails
}

// Service owns the title store, the ingest queue and the ingest history.
type Service struct {
	log      *zap.Logger
	config   Config
	store    *Store
	history  *History
	queue    *jobqueue.Queue[Job]
	notifier Notifier
	now      func() time.Time

	mu      sync.Mutex
	paths   map[string]string
	running string
}

// Option customises a Service.
type Option func(*Service)

// WithNotifier sets the event notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithJournal persists history through journal.
func WithJournal(journal HistoryJournal) Option {
	return func(s *Service) {
		s.history = NewHistory(journal)
	}
}

// WithQueue sets the job queue, mainly so tests can supply ids.
func WithQueue(q *jobqueue.Queue[Job]) Option {
	return func(s *Service) {
		if q != nil {
			s.queue = q
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the content service.
func NewService(log *zap.Logger, cfg Config, opts ...Option) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	for name, path := range map[string]string{"incoming": cfg.IncomingPath, "assets": cfg.AssetsPath, "ingest": cfg.IngestPath} {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%s path required", name)
		}
	}
	s := &Service{
		log:      log,
		config:   cfg,
		store:    NewStore(),
		history:  NewHistory(nil),
		queue:    jobqueue.New[Job](nil),
		notifier: nopNotifier{},
		now:      time.Now,
		paths:    map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.history.Replay(); err != nil {
		return nil, fmt.Errorf("replay ingest history: %w", err)
	}
	s.restoreLocked()
	return s, nil
}

// restoreLocked rebuilds the path index from replayed history. Jobs that
// were queued or running when the process stopped are marked failed since
// the queue itself is not persisted.
func (s *Service) restoreLocked() {
	for _, info := range s.history.All() {
		switch info.State {
		case screener.IngestDone:
			s.paths[info.DCPPath] = info.IngestUUID
		case screener.IngestQueued, screener.IngestRunning:
			s.transition(info.IngestUUID, info.DCPPath, screener.IngestFailed, nil, "interrupted by restart")
		}
	}
}

// Ingest queues a download of req.DCPPath. A path already queued, running
// or ingested returns the existing job id and reports a duplicate.
func (s *Service) Ingest(req screener.IngestArgs) (string, bool, error) {
	path := strings.Trim(strings.TrimSpace(req.DCPPath), "/")
	if path == "" {
		return "", false, fmt.Errorf("%w: dcp_path required", ErrInvalidRequest)
	}
	conn := s.config.Connection
	if req.ConnectionDetails != nil {
		conn = *req.ConnectionDetails
	}
	if strings.TrimSpace(conn.Host) == "" {
		return "", false, fmt.Errorf("%w: connection host required", ErrInvalidRequest)
	}

	s.mu.Lock()
	if id, ok := s.paths[path]; ok {
		s.mu.Unlock()
		s.log.Info("dcp already known, not queued", zap.String("dcp_path", path), zap.String("ingest_uuid", id))
		return id, true, nil
	}
	id := s.queue.Put(Job{DCPPath: path, Connection: conn})
	s.paths[path] = id
	evt := s.record(id, path, screener.IngestQueued, nil, "")
	s.mu.Unlock()

	s.notifier.IngestState(evt)
	s.log.Info("dcp queued for ingest", zap.String("dcp_path", path), zap.String("ingest_uuid", id))
	return id, false, nil
}

// CancelIngest removes a queued job. It reports false for a job that is
// running or finished.
func (s *Service) CancelIngest(id string) (bool, error) {
	s.mu.Lock()
	job, queued := s.queue.Lookup(id)
	if queued && s.queue.Cancel(id) {
		s.releaseLocked(job.DCPPath, id)
		evt := s.record(id, job.DCPPath, screener.IngestCancelled, nil, "")
		s.mu.Unlock()

		s.notifier.IngestState(evt)
		s.log.Info("ingest cancelled", zap.String("ingest_uuid", id))
		return true, nil
	}
	_, known := s.history.Get(id)
	known = known || s.running == id
	s.mu.Unlock()
	if known {
		return false, nil
	}
	return false, ErrIngestNotFound
}

// IngestInfo returns the history of one job.
func (s *Service) IngestInfo(id string) (screener.IngestInfo, error) {
	info, ok := s.history.Get(id)
	if !ok {
		return screener.IngestInfo{}, ErrIngestNotFound
	}
	return info, nil
}

// IngestsInfo returns the history of several jobs, failing on the first
// unknown id.
func (s *Service) IngestsInfo(ids []string) ([]screener.IngestInfo, error) {
	out := make([]screener.IngestInfo, 0, len(ids))
	for _, id := range ids {
		info, err := s.IngestInfo(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", err, id)
		}
		out = append(out, info)
	}
	return out, nil
}

// IngestHistory returns the full history log.
func (s *Service) IngestHistory() []screener.IngestInfo {
	return s.history.All()
}

// ClearIngestHistory discards the history log. Titles are untouched. Paths
// of finished jobs are forgotten with their history, so a later ingest of
// the same path is queued again, as it would be after a restart. Queued and
// running jobs keep their paths.
func (s *Service) ClearIngestHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.history.Clear()
	for path, id := range s.paths {
		if _, queued := s.queue.Lookup(id); queued || s.running == id {
			continue
		}
		delete(s.paths, path)
	}
	return err
}

// QueuedIDs returns the ids of jobs waiting for the worker.
func (s *Service) QueuedIDs() []string {
	return s.queue.IDs()
}

// TitleIDs returns every published title id.
func (s *Service) TitleIDs() []string {
	return s.store.IDs()
}

// Title returns a published title.
func (s *Service) Title(id string) (*Title, error) {
	title, ok := s.store.Get(id)
	if !ok {
		return nil, ErrTitleNotFound
	}
	return title, nil
}

// Titles returns the known titles among ids. Unknown ids are logged and
// skipped.
func (s *Service) Titles(ids []string) []*Title {
	out := make([]*Title, 0, len(ids))
	for _, id := range ids {
		title, ok := s.store.Get(id)
		if !ok {
			s.log.Warn("cpl not found, skipped", zap.String("cpl_uuid", id))
			continue
		}
		out = append(out, title)
	}
	return out
}

// HasTitle reports whether id is published.
func (s *Service) HasTitle(id string) bool {
	return s.store.Has(id)
}

// CheckTitle returns the title after confirming its directory and every
// asset it references are present.
func (s *Service) CheckTitle(id string) (*Title, error) {
	title, err := s.Title(id)
	if err != nil {
		return nil, err
	}
	pkg, err := dcp.Parse(title.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTitle, err)
	}
	if err := dcp.CheckFiles(pkg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTitle, err)
	}
	return title, nil
}

// Reindex publishes the title directories already present in the ingest
// path. Directories that fail to parse are logged and skipped.
func (s *Service) Reindex() (int, error) {
	entries, err := os.ReadDir(s.config.IngestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read ingest dir: %w", err)
	}

	var titles []*Title
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.config.IngestPath, entry.Name())
		pkg, err := dcp.Parse(dir)
		if err != nil {
			s.log.Warn("skipping title dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		if err := dcp.CheckFiles(pkg); err != nil {
			s.log.Warn("skipping title dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		info, err := os.Stat(filepath.Join(dir, titleCPLFile))
		ingested := s.now()
		if err == nil {
			ingested = info.ModTime()
		}
		for _, cpl := range pkg.CPLs {
			if cpl.ID != entry.Name() {
				continue
			}
			titles = append(titles, &Title{ID: cpl.ID, CPL: cpl, Dir: dir, IngestedAt: ingested})
		}
	}
	added := s.store.Publish(titles...)
	return len(added), nil
}

// begin marks id as the running job and records it.
func (s *Service) begin(id, path string) screener.IngestStateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = id
	return s.record(id, path, screener.IngestRunning, nil, "")
}

// finish clears the running job and records its outcome. A failed job
// releases its path so it may be queued again.
func (s *Service) finish(id, path string, cpls []string, cause error) screener.IngestStateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == id {
		s.running = ""
	}
	if cause != nil {
		s.releaseLocked(path, id)
		return s.record(id, path, screener.IngestFailed, nil, cause.Error())
	}
	return s.record(id, path, screener.IngestDone, cpls, "")
}

func (s *Service) releaseLocked(path, id string) {
	if s.paths[path] == id {
		delete(s.paths, path)
	}
}

// transition records a state change and notifies it. It must not be called
// with s.mu held; use record and notify after unlocking instead.
func (s *Service) transition(id, path, state string, cpls []string, errMsg string) {
	s.notifier.IngestState(s.record(id, path, state, cpls, errMsg))
}

// record appends a state change to the history and returns its event.
func (s *Service) record(id, path, state string, cpls []string, errMsg string) screener.IngestStateEvent {
	now := s.now()
	err := s.history.Transition(JournalEntry{
		IngestUUID: id,
		DCPPath:    path,
		State:      state,
		Timestamp:  now,
		CPLUUIDs:   cpls,
		Error:      errMsg,
	})
	if err != nil {
		s.log.Error("persist ingest history", zap.String("ingest_uuid", id), zap.Error(err))
	}
	return screener.IngestStateEvent{
		IngestUUID: id,
		DCPPath:    path,
		State:      state,
		CPLUUIDs:   cpls,
		Error:      errMsg,
		TS:         now.Unix(),
	}
}
