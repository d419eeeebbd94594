// Package playback implements the playback state machine of the emulated
// server.
package playback

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/pkg/screener"
)

var (
	// ErrNothingLoaded reports an operation that needs a loaded item.
	ErrNothingLoaded = errors.New("nothing loaded")
	// ErrTitleLoaded reports a playlist operation while a title is loaded.
	ErrTitleLoaded = errors.New("title loaded, load a playlist to skip")
	// ErrEventNotFound reports a skip outside the loaded playlist.
	ErrEventNotFound = errors.New("playlist event not found")
	// ErrNotImplemented reports an operation without defined semantics.
	ErrNotImplemented = errors.New("not implemented")
	// ErrTitleNotFound is returned by validators for unknown titles.
	ErrTitleNotFound = errors.New("title not found")
	// ErrPlaylistNotFound is returned by validators for unknown playlists.
	ErrPlaylistNotFound = errors.New("playlist not found")
	// ErrInvalidTitle is returned by validators for titles that fail checks.
	ErrInvalidTitle = errors.New("invalid title")
	// ErrInvalidPlaylist is returned by validators for playlists that fail checks.
	ErrInvalidPlaylist = errors.New("invalid playlist")
)

// State is a playback state.
type State int

const (
	StateEject State = screener.StateEject
	StateStop  State = screener.StateStop
	StatePlay  State = screener.StatePlay
	StatePause State = screener.StatePause
)

func (s State) String() string {
	switch s {
	case StateEject:
		return "EJECT"
	case StateStop:
		return "STOP"
	case StatePlay:
		return "PLAY"
	case StatePause:
		return "PAUSE"
	default:
		return "UNKNOWN"
	}
}

// Loaded is the item in the player: nil, *LoadedTitle or *LoadedPlaylist.
type Loaded interface {
	loaded()
}

// LoadedTitle is a single composition.
type LoadedTitle struct {
	ID    string
	Title string
}

// LoadedPlaylist is a show playlist and the current event.
type LoadedPlaylist struct {
	Playlist screener.Playlist
	Index    int
}

func (*LoadedTitle) loaded()    {}
func (*LoadedPlaylist) loaded() {}

// Validator checks items before they are loaded. Implementations return the
// package sentinels, wrapped with detail for invalid content.
type Validator interface {
	ValidateTitle(id string) (LoadedTitle, error)
	ValidatePlaylist(id string) (screener.Playlist, error)
}

// Notifier receives playback state changes.
type Notifier interface {
	PlaybackState(evt screener.PlaybackStateEvent)
}

type nopNotifier struct{}

func (nopNotifier) PlaybackState(screener.PlaybackStateEvent) {}

// Engine is the playback state machine. It starts ejected.
type Engine struct {
	log       *zap.Logger
	validator Validator
	notifier  Notifier
	now       func() time.Time

	// changeMu is held across a state change and its notification so
	// events leave in the order the changes were made. It is taken before mu.
	changeMu sync.Mutex
	mu       sync.Mutex
	state    State
	loaded   Loaded
}

// NewEngine builds an ejected engine. notifier may be nil.
func NewEngine(log *zap.Logger, validator Validator, notifier Notifier) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Engine{log: log, validator: validator, notifier: notifier, now: time.Now, state: StateEject}
}

// LoadTitle ejects, validates the title and stops with it loaded. A failed
// validation leaves the player ejected.
func (e *Engine) LoadTitle(id string) error {
	return e.load(func() (Loaded, error) {
		title, err := e.validator.ValidateTitle(id)
		if err != nil {
			return nil, err
		}
		return &title, nil
	})
}

// LoadPlaylist ejects, validates the playlist and stops on its first event.
func (e *Engine) LoadPlaylist(id string) error {
	return e.load(func() (Loaded, error) {
		pl, err := e.validator.ValidatePlaylist(id)
		if err != nil {
			return nil, err
		}
		return &LoadedPlaylist{Playlist: pl}, nil
	})
}

func (e *Engine) load(validate func() (Loaded, error)) error {
	e.changeMu.Lock()
	defer e.changeMu.Unlock()
	e.mu.Lock()
	e.state = StateEject
	e.loaded = nil
	item, err := validate()
	if err == nil {
		e.loaded = item
		e.state = StateStop
	}
	status := e.statusLocked()
	e.mu.Unlock()

	e.publish(status)
	return err
}

// Play starts playback of the loaded item.
func (e *Engine) Play() error {
	return e.transition(StatePlay, true)
}

// Pause pauses the loaded item.
func (e *Engine) Pause() error {
	return e.transition(StatePause, true)
}

// Stop stops playback and keeps the loaded item.
func (e *Engine) Stop() error {
	return e.transition(StateStop, false)
}

// Eject stops playback and unloads the item.
func (e *Engine) Eject() error {
	e.changeMu.Lock()
	defer e.changeMu.Unlock()
	e.mu.Lock()
	e.state = StateEject
	e.loaded = nil
	status := e.statusLocked()
	e.mu.Unlock()

	e.publish(status)
	return nil
}

func (e *Engine) transition(to State, needsItem bool) error {
	e.changeMu.Lock()
	defer e.changeMu.Unlock()
	e.mu.Lock()
	if needsItem && e.loaded == nil {
		e.mu.Unlock()
		return ErrNothingLoaded
	}
	from := e.state
	e.state = to
	status := e.statusLocked()
	e.mu.Unlock()

	if from != to {
		e.log.Debug("playback state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	e.publish(status)
	return nil
}

// SkipForward moves to the next playlist event.
func (e *Engine) SkipForward() error {
	return e.skip(func(pl *LoadedPlaylist) (int, bool) {
		next := pl.Index + 1
		return next, next < len(pl.Playlist.Events)
	})
}

// SkipBackward moves to the previous playlist event.
func (e *Engine) SkipBackward() error {
	return e.skip(func(pl *LoadedPlaylist) (int, bool) {
		prev := pl.Index - 1
		return prev, prev >= 0 && prev < len(pl.Playlist.Events)
	})
}

// SkipToEvent moves to the playlist event with eventID.
func (e *Engine) SkipToEvent(eventID string) error {
	return e.skip(func(pl *LoadedPlaylist) (int, bool) {
		for i, event := range pl.Playlist.Events {
			if event.ID == eventID {
				return i, true
			}
		}
		return 0, false
	})
}

// SkipToPosition has no defined semantics yet. It applies the playlist
// guards and then reports ErrNotImplemented.
func (e *Engine) SkipToPosition(position int64) error {
	e.mu.Lock()
	_, err := e.playlistLocked()
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.log.Debug("skip to position requested", zap.Int64("position", position))
	return ErrNotImplemented
}

func (e *Engine) skip(target func(pl *LoadedPlaylist) (int, bool)) error {
	e.changeMu.Lock()
	defer e.changeMu.Unlock()
	e.mu.Lock()
	pl, err := e.playlistLocked()
	if err != nil {
		e.mu.Unlock()
		return err
	}
	index, ok := target(pl)
	if !ok {
		e.mu.Unlock()
		return ErrEventNotFound
	}
	pl.Index = index
	status := e.statusLocked()
	e.mu.Unlock()

	e.publish(status)
	return nil
}

func (e *Engine) playlistLocked() (*LoadedPlaylist, error) {
	switch item := e.loaded.(type) {
	case nil:
		return nil, ErrNothingLoaded
	case *LoadedTitle:
		return nil, ErrTitleLoaded
	case *LoadedPlaylist:
		return item, nil
	default:
		return nil, ErrNothingLoaded
	}
}

// Status returns the state and a summary of the loaded item.
func (e *Engine) Status() screener.StatusReply {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() screener.StatusReply {
	status := screener.StatusReply{State: int(e.state), StateName: e.state.String()}
	switch item := e.loaded.(type) {
	case *LoadedTitle:
		status.CPLUUID = item.ID
		status.Title = item.Title
	case *LoadedPlaylist:
		status.PlaylistUUID = item.Playlist.UUID
		status.Title = item.Playlist.Title
		if item.Index >= 0 && item.Index < len(item.Playlist.Events) {
			index := item.Index
			event := item.Playlist.Events[index]
			status.EventIndex = &index
			status.EventID = event.ID
			if event.Type == screener.EventComposition {
				status.CPLUUID = event.CPLID
			}
		}
	}
	return status
}

func (e *Engine) publish(status screener.StatusReply) {
	e.notifier.PlaybackState(screener.PlaybackStateEvent{StatusReply: status, TS: e.now().Unix()})
}
