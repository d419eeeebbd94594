package playback

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/pkg/screener"
)

type fakeValidator struct {
	titles    map[string]LoadedTitle
	playlists map[string]screener.Playlist
	invalid   map[string]bool
}

func (f fakeValidator) ValidateTitle(id string) (LoadedTitle, error) {
	if f.invalid[id] {
		return LoadedTitle{}, fmt.Errorf("%w: asset missing", ErrInvalidTitle)
	}
	title, ok := f.titles[id]
	if !ok {
		return LoadedTitle{}, ErrTitleNotFound
	}
	return title, nil
}

func (f fakeValidator) ValidatePlaylist(id string) (screener.Playlist, error) {
	if f.invalid[id] {
		return screener.Playlist{}, fmt.Errorf("%w: cpl not ingested", ErrInvalidPlaylist)
	}
	pl, ok := f.playlists[id]
	if !ok {
		return screener.Playlist{}, ErrPlaylistNotFound
	}
	return pl, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []screener.PlaybackStateEvent
}

func (r *recordingNotifier) PlaybackState(evt screener.PlaybackStateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func newEngine() (*Engine, *recordingNotifier) {
	validator := fakeValidator{
		titles: map[string]LoadedTitle{"cpl-1": {ID: "cpl-1", Title: "Feature"}},
		playlists: map[string]screener.Playlist{
			"pl-1": {
				UUID:  "pl-1",
				Title: "Show",
				Events: []screener.PlaylistEvent{
					{ID: "e1", Type: screener.EventComposition, CPLID: "cpl-1"},
					{ID: "e2", Type: screener.EventPause},
					{ID: "e3", Type: screener.EventComposition, CPLID: "cpl-2"},
				},
			},
		},
		invalid: map[string]bool{"bad-cpl": true, "bad-pl": true},
	}
	notifier := &recordingNotifier{}
	return NewEngine(zap.NewNop(), validator, notifier), notifier
}

func TestInitialState(t *testing.T) {
	engine, _ := newEngine()
	status := engine.Status()
	if status.State != screener.StateEject || status.StateName != "EJECT" {
		t.Fatalf("expected EJECT, got %+v", status)
	}
	if err := engine.Play(); !errors.Is(err, ErrNothingLoaded) {
		t.Fatalf("expected nothing loaded on play, got %v", err)
	}
	if err := engine.Pause(); !errors.Is(err, ErrNothingLoaded) {
		t.Fatalf("expected nothing loaded on pause, got %v", err)
	}
	if engine.Status().State != screener.StateEject {
		t.Fatalf("expected state unchanged after failed play")
	}
}

func TestLoadTitleStopPlay(t *testing.T) {
	engine, notifier := newEngine()
	if err := engine.LoadTitle("cpl-1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	status := engine.Status()
	if status.State != screener.StateStop || status.CPLUUID != "cpl-1" || status.Title != "Feature" {
		t.Fatalf("unexpected status %+v", status)
	}
	if err := engine.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if engine.Status().State != screener.StateStop {
		t.Fatalf("expected STOP")
	}
	if err := engine.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if engine.Status().State != screener.StatePlay {
		t.Fatalf("expected PLAY")
	}
	if err := engine.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if engine.Status().State != screener.StatePause {
		t.Fatalf("expected PAUSE")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.events) != 4 {
		t.Fatalf("expected 4 notifications, got %d", len(notifier.events))
	}
	if notifier.events[3].StateName != "PAUSE" {
		t.Fatalf("expected last notification PAUSE")
	}
}

func TestLoadFailuresLeaveEjected(t *testing.T) {
	engine, _ := newEngine()
	_ = engine.LoadTitle("cpl-1")
	_ = engine.Play()

	if err := engine.LoadTitle("missing"); !errors.Is(err, ErrTitleNotFound) {
		t.Fatalf("expected title not found, got %v", err)
	}
	status := engine.Status()
	if status.State != screener.StateEject || status.CPLUUID != "" {
		t.Fatalf("expected ejected after failed load, got %+v", status)
	}
	if err := engine.LoadTitle("bad-cpl"); !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected invalid title, got %v", err)
	}
	if err := engine.LoadPlaylist("missing"); !errors.Is(err, ErrPlaylistNotFound) {
		t.Fatalf("expected playlist not found, got %v", err)
	}
	if err := engine.LoadPlaylist("bad-pl"); !errors.Is(err, ErrInvalidPlaylist) {
		t.Fatalf("expected invalid playlist, got %v", err)
	}
}

func TestStopAndEject(t *testing.T) {
	engine, _ := newEngine()
	if err := engine.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if engine.Status().State != screener.StateStop {
		t.Fatalf("expected STOP even with nothing loaded")
	}

	_ = engine.LoadPlaylist("pl-1")
	_ = engine.Play()
	if err := engine.Eject(); err != nil {
		t.Fatalf("eject: %v", err)
	}
	status := engine.Status()
	if status.State != screener.StateEject || status.PlaylistUUID != "" {
		t.Fatalf("expected ejected and cleared, got %+v", status)
	}
}

func TestSkipGuards(t *testing.T) {
	engine, _ := newEngine()
	if err := engine.SkipForward(); !errors.Is(err, ErrNothingLoaded) {
		t.Fatalf("expected nothing loaded, got %v", err)
	}
	if err := engine.SkipToPosition(10); !errors.Is(err, ErrNothingLoaded) {
		t.Fatalf("expected nothing loaded, got %v", err)
	}

	_ = engine.LoadTitle("cpl-1")
	for name, skip := range map[string]func() error{
		"forward":  engine.SkipForward,
		"backward": engine.SkipBackward,
		"event":    func() error { return engine.SkipToEvent("e1") },
		"position": func() error { return engine.SkipToPosition(10) },
	} {
		if err := skip(); !errors.Is(err, ErrTitleLoaded) {
			t.Fatalf("%s: expected title loaded, got %v", name, err)
		}
	}
}

func TestSkipWithinPlaylist(t *testing.T) {
	engine, _ := newEngine()
	if err := engine.LoadPlaylist("pl-1"); err != nil {
		t.Fatalf("load playlist: %v", err)
	}
	status := engine.Status()
	if status.EventIndex == nil || *status.EventIndex != 0 || status.EventID != "e1" || status.CPLUUID != "cpl-1" {
		t.Fatalf("expected first event, got %+v", status)
	}

	if err := engine.SkipBackward(); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected event not found before first, got %v", err)
	}
	if err := engine.SkipForward(); err != nil {
		t.Fatalf("skip forward: %v", err)
	}
	if engine.Status().EventID != "e2" {
		t.Fatalf("expected e2")
	}
	if err := engine.SkipToEvent("e3"); err != nil {
		t.Fatalf("skip to event: %v", err)
	}
	if engine.Status().CPLUUID != "cpl-2" {
		t.Fatalf("expected cpl-2 current")
	}
	if err := engine.SkipForward(); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected event not found past end, got %v", err)
	}
	if err := engine.SkipToEvent("nope"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected event not found, got %v", err)
	}
	if err := engine.SkipBackward(); err != nil {
		t.Fatalf("skip backward: %v", err)
	}
	if engine.Status().EventID != "e2" {
		t.Fatalf("expected e2 after skipping back")
	}
	if err := engine.SkipToPosition(5); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected not implemented, got %v", err)
	}
}

func TestStateNames(t *testing.T) {
	if State(9).String() != "UNKNOWN" || StatePause.String() != "PAUSE" {
		t.Fatalf("unexpected state names")
	}
}

// slowNotifier yields before recording so racing changes overtake each
// other unless notifications are serialised.
type slowNotifier struct {
	recordingNotifier
}

func (s *slowNotifier) PlaybackState(evt screener.PlaybackStateEvent) {
	runtime.Gosched()
	s.recordingNotifier.PlaybackState(evt)
}

func TestConcurrentChangesNotifyInOrder(t *testing.T) {
	validator := fakeValidator{titles: map[string]LoadedTitle{"cpl-1": {ID: "cpl-1", Title: "Feature"}}}
	notifier := &slowNotifier{}
	engine := NewEngine(zap.NewNop(), validator, notifier)
	if err := engine.LoadTitle("cpl-1"); err != nil {
		t.Fatalf("load: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				switch (i + j) % 3 {
				case 0:
					_ = engine.Play()
				case 1:
					_ = engine.Pause()
				default:
					_ = engine.Stop()
				}
			}
		}(i)
	}
	wg.Wait()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	last := notifier.events[len(notifier.events)-1]
	if status := engine.Status(); last.StateName != status.StateName {
		t.Fatalf("expected last event %s to match engine state %s", last.StateName, status.StateName)
	}
	if len(notifier.events) != 1+8*50 {
		t.Fatalf("expected one event per change, got %d", len(notifier.events))
	}
}
