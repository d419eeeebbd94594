package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/core"
	"github.com/mikey-austin/screener/internal/modules/content"
	"github.com/mikey-austin/screener/internal/modules/playback"
	"github.com/mikey-austin/screener/internal/modules/playlist"
	"github.com/mikey-austin/screener/internal/modules/schedule"
	"github.com/mikey-austin/screener/internal/server"
)

// startDaemon runs the command server on a loopback port with in-memory
// playlists and an idle ingest queue.
func startDaemon(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	log := zap.NewNop()

	svc, err := content.NewService(log, content.Config{
		IncomingPath: filepath.Join(root, "incoming"),
		AssetsPath:   filepath.Join(root, "assets"),
		IngestPath:   filepath.Join(root, "ingest"),
	})
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	playlists, err := playlist.NewStore(log, nil, nil)
	if err != nil {
		t.Fatalf("playlists: %v", err)
	}
	schedules, err := schedule.New(log, schedule.Config{TitleExists: svc.HasTitle, PlaylistExists: playlists.Has})
	if err != nil {
		t.Fatalf("schedules: %v", err)
	}
	scr, err := server.NewScreener(log, server.Deps{
		Content:   svc,
		Playlists: playlists,
		Schedules: schedules,
		Player:    playback.NewEngine(log, server.NewCatalog(svc, playlists), nil),
	})
	if err != nil {
		t.Fatalf("screener: %v", err)
	}
	srv, err := server.Listen(log, scr, server.Config{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv.Addr().String()
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestStatusAgainstDaemon(t *testing.T) {
	addr := startDaemon(t)
	out, err := run(t, "", "--addr", addr, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if strings.TrimSpace(out) != "EJECT" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestModeRoundTrip(t *testing.T) {
	addr := startDaemon(t)
	if out, err := run(t, "", "--addr", addr, "mode", "manual"); err != nil || strings.TrimSpace(out) != "MANUAL" {
		t.Fatalf("set mode: %q %v", out, err)
	}
	if out, err := run(t, "", "--addr", addr, "mode"); err != nil || strings.TrimSpace(out) != "MANUAL" {
		t.Fatalf("get mode: %q %v", out, err)
	}
	_, err := run(t, "", "--addr", addr, "mode", "sometimes")
	if core.ExitCode(err) != core.ExitUsage {
		t.Fatalf("expected usage exit for bad mode, got %v", err)
	}
}

func TestPlaylistInsertFromStdin(t *testing.T) {
	addr := startDaemon(t)
	doc := `{"title":"Intermission","duration":10,"events":[{"id":"break","type":"pause","duration_in_seconds":10}]}`
	out, err := run(t, doc, "--addr", addr, "playlist", "insert", "-")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) != 2 || fields[0] != "playlist" {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = run(t, "", "--addr", addr, "--json", "playlist", "ls", "--ids")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(out, fields[1]) {
		t.Fatalf("expected %s listed in %q", fields[1], out)
	}
}

func TestErrorsMapToExitCodes(t *testing.T) {
	addr := startDaemon(t)
	_, err := run(t, "", "--addr", addr, "load", "cpl", "missing")
	if core.ExitCode(err) != core.ExitNotFound {
		t.Fatalf("expected not found exit, got %v", err)
	}
	_, err = run(t, "", "--addr", addr, "play")
	if core.ExitCode(err) != core.ExitState {
		t.Fatalf("expected state exit, got %v", err)
	}
	_, err = run(t, "", "--addr", addr, "ingest", "info", "nope")
	if core.ExitCode(err) != core.ExitNotFound {
		t.Fatalf("expected not found exit, got %v", err)
	}
}

func TestWatchRequiresBroker(t *testing.T) {
	_, err := run(t, "", "watch")
	if core.ExitCode(err) != core.ExitUsage {
		t.Fatalf("expected usage exit, got %v", err)
	}
}

func TestUnreachableDaemon(t *testing.T) {
	_, err := run(t, "", "--addr", "127.0.0.1:1", "--timeout", "500ms", "status")
	if core.ExitCode(err) != core.ExitRuntime {
		t.Fatalf("expected runtime exit, got %v", err)
	}
}
