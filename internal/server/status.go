package server

import (
	"errors"

	"github.com/mikey-austin/screener/internal/modules/content"
	"github.com/mikey-austin/screener/internal/modules/playback"
	"github.com/mikey-austin/screener/internal/modules/playlist"
	"github.com/mikey-austin/screener/internal/modules/schedule"
	"github.com/mikey-austin/screener/pkg/screener"
)

// errInvalidArgs wraps argument decoding failures.
var errInvalidArgs = errors.New("invalid arguments")

var statusTable = []struct {
	err    error
	status screener.Status
}{
	{errInvalidArgs, screener.StatusInvalidArguments},
	{content.ErrTitleNotFound, screener.StatusCPLNotFound},
	{content.ErrInvalidTitle, screener.StatusInvalidCPL},
	{content.ErrIngestNotFound, screener.StatusIngestNotFound},
	{content.ErrInvalidRequest, screener.StatusInvalidArguments},
	{playback.ErrNothingLoaded, screener.StatusNothingLoaded},
	{playback.ErrTitleLoaded, screener.StatusCPLLoaded},
	{playback.ErrEventNotFound, screener.StatusEventNotFound},
	{playback.ErrNotImplemented, screener.StatusNotImplemented},
	{playback.ErrTitleNotFound, screener.StatusCPLNotFound},
	{playback.ErrPlaylistNotFound, screener.StatusPlaylistNotFound},
	{playback.ErrInvalidTitle, screener.StatusInvalidCPL},
	{playback.ErrInvalidPlaylist, screener.StatusInvalidPlaylist},
	{playlist.ErrNotFound, screener.StatusPlaylistNotFound},
	{schedule.ErrNotFound, screener.StatusScheduleNotFound},
	{schedule.ErrTitleNotFound, screener.StatusCPLNotFound},
	{schedule.ErrPlaylistNotFound, screener.StatusPlaylistNotFound},
	{schedule.ErrInvalidMode, screener.StatusInvalidMode},
}

// statusFor maps a domain error to its response status.
func statusFor(err error) screener.Status {
	if err == nil {
		return screener.StatusSuccess
	}
	var verr *playlist.ValidationError
	if errors.As(err, &verr) {
		return screener.StatusInvalidPlaylist
	}
	for _, entry := range statusTable {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return screener.StatusInternalError
}

// failure builds the reply for err. Validation failures carry a trace.
func failure(err error) screener.Reply {
	status := statusFor(err)
	reply := screener.Fail(status)
	switch status {
	case screener.StatusInvalidPlaylist, screener.StatusInvalidCPL, screener.StatusInvalidArguments, screener.StatusInternalError:
		var verr *playlist.ValidationError
		if errors.As(err, &verr) {
			return reply.WithTrace(verr.Trace())
		}
		return reply.WithTrace(err.Error())
	}
	return reply
}
