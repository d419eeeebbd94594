package server

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/dcp"
	"github.com/mikey-austin/screener/internal/dcp/dcptest"
	"github.com/mikey-austin/screener/internal/modules/content"
	"github.com/mikey-austin/screener/internal/modules/playback"
	"github.com/mikey-austin/screener/internal/modules/playlist"
	"github.com/mikey-austin/screener/internal/modules/schedule"
	"github.com/mikey-austin/screener/pkg/screener"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixtureTransfer struct {
	mu       sync.Mutex
	packages map[string]dcptest.Package
}

func (f *fixtureTransfer) add(path string, pkg dcptest.Package) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packages[path] = pkg
}

func (f *fixtureTransfer) Download(_ context.Context, _ screener.ConnectionDetails, remotePath, dest string, progress content.ProgressFunc) (string, error) {
	f.mu.Lock()
	pkg, ok := f.packages[remotePath]
	f.mu.Unlock()
	dir := filepath.Join(dest, filepath.Base(remotePath))
	if !ok {
		return dir, errors.New("550 no such directory")
	}
	if err := dcptest.Write(dir, pkg); err != nil {
		return dir, err
	}
	progress(1, 1)
	return dir, nil
}

type fixture struct {
	content   *content.Service
	playlists *playlist.Store
	schedules *schedule.Store
	player    *playback.Engine
	screener  *Screener
	transfer  *fixtureTransfer
}

// newFixture wires the subsystems with the ingest worker running until the
// test ends.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	log := zap.NewNop()

	svc, err := content.NewService(log, content.Config{
		IncomingPath: filepath.Join(root, "incoming"),
		AssetsPath:   filepath.Join(root, "assets"),
		IngestPath:   filepath.Join(root, "ingest"),
		Connection:   screener.ConnectionDetails{Host: "ftp.example", User: "u", Passwd: "p"},
	})
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	transfer := &fixtureTransfer{packages: map[string]dcptest.Package{}}
	ingester, err := content.NewIngester(log, svc, transfer, dcp.Parser{}, content.IngesterConfig{})
	if err != nil {
		t.Fatalf("ingester: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ingester.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	playlists, err := playlist.NewStore(log, nil, nil)
	if err != nil {
		t.Fatalf("playlists: %v", err)
	}
	schedules, err := schedule.New(log, schedule.Config{
		TitleExists:    svc.HasTitle,
		PlaylistExists: playlists.Has,
	})
	if err != nil {
		t.Fatalf("schedules: %v", err)
	}
	player := playback.NewEngine(log, NewCatalog(svc, playlists), nil)

	s, err := NewScreener(log, Deps{
		Content:   svc,
		Playlists: playlists,
		Schedules: schedules,
		Player:    player,
		Now:       func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("screener: %v", err)
	}
	return &fixture{
		content:   svc,
		playlists: playlists,
		schedules: schedules,
		player:    player,
		screener:  s,
		transfer:  transfer,
	}
}

// waitState polls until the job reaches state.
func (f *fixture) waitState(t *testing.T, id, state string) screener.IngestInfo {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		info, err := f.content.IngestInfo(id)
		if err == nil && info.State == state {
			return info
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected ingest %s to reach %s, got %+v (%v)", id, state, info, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
