// Package feedwatch polls an RSS or Atom feed announcing DCPs on the
// distribution server and enqueues an ingest for every new item.
package feedwatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/mikey-austin/screener/pkg/screener"
)

// Ingester enqueues a DCP download.
type Ingester interface {
	Ingest(req screener.IngestArgs) (string, bool, error)
}

// Config configures the watcher.
type Config struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	// Connection overrides the daemon's default FTP server for items whose
	// link is a bare path. ftp:// links always carry their own host.
	Connection *screener.ConnectionDetails
}

// Announcement is one DCP found in the feed.
type Announcement struct {
	Key  string
	Args screener.IngestArgs
}

// Watcher polls the feed.
type Watcher struct {
	log      *zap.Logger
	ingester Ingester
	http     *http.Client
	config   Config

	mu   sync.Mutex
	seen map[string]string
}

// New validates cfg and returns a watcher.
func New(log *zap.Logger, ingester Ingester, cfg Config) (*Watcher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("feed url required")
	}
	if ingester == nil {
		return nil, errors.New("ingester required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		log:      log,
		ingester: ingester,
		http:     &http.Client{Timeout: cfg.Timeout},
		config:   cfg,
		seen:     make(map[string]string),
	}, nil
}

// Run polls immediately and then on every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()
	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("feed poll failed", zap.String("url", w.config.URL), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches the feed once and ingests unseen announcements. It returns
// the ingest ids queued by this poll.
func (w *Watcher) Poll(ctx context.Context) ([]string, error) {
	feed, err := w.fetch(ctx)
	if err != nil {
		return nil, err
	}
	var queued []string
	for _, ann := range Announcements(feed, w.config.Connection) {
		if w.isSeen(ann.Key) {
			continue
		}
		id, duplicate, err := w.ingester.Ingest(ann.Args)
		if err != nil {
			w.log.Warn("feed ingest rejected", zap.String("item", ann.Key), zap.Error(err))
			continue
		}
		w.markSeen(ann.Key, id)
		if duplicate {
			w.log.Debug("feed item already ingesting", zap.String("item", ann.Key), zap.String("ingest", id))
			continue
		}
		w.log.Info("feed item queued", zap.String("item", ann.Key), zap.String("dcp_path", ann.Args.DCPPath), zap.String("ingest", id))
		queued = append(queued, id)
	}
	return queued, nil
}

func (w *Watcher) isSeen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[key]
	return ok
}

func (w *Watcher) markSeen(key, id string) {
	w.mu.Lock()
	w.seen[key] = id
	w.mu.Unlock()
}

func (w *Watcher) fetch(ctx context.Context) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.config.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "screenerd/1.0")

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("feed fetch failed: %s", resp.Status)
	}
	return gofeed.NewParser().Parse(resp.Body)
}

// Announcements extracts DCP locations from a parsed feed. The first
// enclosure wins, then the item link, then the guid. Items with nothing
// usable are skipped.
func Announcements(feed *gofeed.Feed, fallback *screener.ConnectionDetails) []Announcement {
	if feed == nil {
		return nil
	}
	out := make([]Announcement, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		for _, ref := range candidates(item) {
			args, ok := parseLocation(ref, fallback)
			if !ok {
				continue
			}
			key := strings.TrimSpace(item.GUID)
			if key == "" {
				key = ref
			}
			out = append(out, Announcement{Key: key, Args: args})
			break
		}
	}
	return out
}

func candidates(item *gofeed.Item) []string {
	var refs []string
	for _, enc := range item.Enclosures {
		if enc != nil && strings.TrimSpace(enc.URL) != "" {
			refs = append(refs, strings.TrimSpace(enc.URL))
		}
	}
	if link := strings.TrimSpace(item.Link); link != "" {
		refs = append(refs, link)
	}
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		refs = append(refs, guid)
	}
	return refs
}

// parseLocation accepts ftp:// URLs and bare absolute paths.
func parseLocation(ref string, fallback *screener.ConnectionDetails) (screener.IngestArgs, bool) {
	if strings.HasPrefix(ref, "/") {
		if strings.Trim(ref, "/") == "" {
			return screener.IngestArgs{}, false
		}
		return screener.IngestArgs{DCPPath: ref, ConnectionDetails: fallback}, true
	}
	u, err := url.Parse(ref)
	if err != nil || !strings.EqualFold(u.Scheme, "ftp") || u.Hostname() == "" {
		return screener.IngestArgs{}, false
	}
	if strings.Trim(u.Path, "/") == "" {
		return screener.IngestArgs{}, false
	}
	conn := &screener.ConnectionDetails{Host: u.Hostname()}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return screener.IngestArgs{}, false
		}
		conn.Port = port
	}
	if u.User != nil {
		conn.User = u.User.Username()
		conn.Passwd, _ = u.User.Password()
	}
	if fallback != nil {
		conn.Mode = fallback.Mode
	}
	return screener.IngestArgs{DCPPath: u.Path, ConnectionDetails: conn}, true
}
