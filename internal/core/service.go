// Package core implements the screenctl use cases on top of the wire
// protocol.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mikey-austin/screener/internal/ports"
	"github.com/mikey-austin/screener/pkg/screener"
)

// Service orchestrates screenctl use cases.
type Service struct {
	Transport     ports.Transport
	Notifications ports.Notifications
	Clock         ports.Clock
	Config        Config
}

// call sends cmd and decodes a successful reply into out, which may be nil.
func (s Service) call(ctx context.Context, cmd screener.Command, args any, out any) error {
	if s.Transport == nil {
		return WrapError(ExitRuntime, "not connected", errors.New("no transport"))
	}
	reply, err := s.Transport.Send(ctx, cmd, args)
	if err != nil {
		return WrapError(ExitRuntime, cmd.String(), err)
	}
	if reply.Status != screener.StatusSuccess {
		return ErrorForReply(reply)
	}
	if out == nil {
		return nil
	}
	if err := reply.Decode(out); err != nil {
		return WrapError(ExitRuntime, "decode "+cmd.String()+" reply", err)
	}
	return nil
}

// Status returns the player status.
func (s Service) Status(ctx context.Context) (StatusResult, error) {
	var reply screener.StatusReply
	if err := s.call(ctx, screener.CmdStatus, nil, &reply); err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Status: reply}, nil
}

// SystemTime returns the daemon clock.
func (s Service) SystemTime(ctx context.Context) (TimeResult, error) {
	var reply screener.SystemTimeReply
	if err := s.call(ctx, screener.CmdSystemTime, nil, &reply); err != nil {
		return TimeResult{}, err
	}
	return TimeResult{Time: reply.Time}, nil
}

// Transport controls.

func (s Service) Play(ctx context.Context) error  { return s.call(ctx, screener.CmdPlay, nil, nil) }
func (s Service) Stop(ctx context.Context) error  { return s.call(ctx, screener.CmdStop, nil, nil) }
func (s Service) Pause(ctx context.Context) error { return s.call(ctx, screener.CmdPause, nil, nil) }
func (s Service) Eject(ctx context.Context) error { return s.call(ctx, screener.CmdEject, nil, nil) }

func (s Service) SkipForward(ctx context.Context) error {
	return s.call(ctx, screener.CmdSkipForward, nil, nil)
}

func (s Service) SkipBackward(ctx context.Context) error {
	return s.call(ctx, screener.CmdSkipBackward, nil, nil)
}

// SkipToPosition seeks to a position in seconds.
func (s Service) SkipToPosition(ctx context.Context, position int64) error {
	return s.call(ctx, screener.CmdSkipToPosition, screener.SkipToPositionArgs{Position: position}, nil)
}

// SkipToEvent jumps to a playlist event.
func (s Service) SkipToEvent(ctx context.Context, eventID string) error {
	if strings.TrimSpace(eventID) == "" {
		return &CLIError{Code: ExitUsage, Msg: "event id required"}
	}
	return s.call(ctx, screener.CmdSkipToEvent, screener.SkipToEventArgs{EventID: eventID}, nil)
}

// LoadCPL loads a single composition.
func (s Service) LoadCPL(ctx context.Context, cplID string) error {
	return s.call(ctx, screener.CmdLoadCPL, screener.LoadCPLArgs{CPLUUID: cplID}, nil)
}

// LoadPlaylist loads a playlist.
func (s Service) LoadPlaylist(ctx context.Context, playlistID string) error {
	return s.call(ctx, screener.CmdLoadPlaylist, screener.LoadPlaylistArgs{PlaylistUUID: playlistID}, nil)
}

// Ingest queues a download of dcpPath. conn may be nil to use the daemon's
// default server.
func (s Service) Ingest(ctx context.Context, dcpPath string, conn *screener.ConnectionDetails) (IngestResult, error) {
	if strings.TrimSpace(dcpPath) == "" {
		return IngestResult{}, &CLIError{Code: ExitUsage, Msg: "dcp path required"}
	}
	var reply screener.IngestReply
	if err := s.call(ctx, screener.CmdIngest, screener.IngestArgs{DCPPath: dcpPath, ConnectionDetails: conn}, &reply); err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Reply: reply}, nil
}

// CancelIngest cancels a queued ingest.
func (s Service) CancelIngest(ctx context.Context, ingestID string) (CancelResult, error) {
	var reply screener.CancelIngestReply
	if err := s.call(ctx, screener.CmdCancelIngest, screener.IngestUUIDArgs{IngestUUID: ingestID}, &reply); err != nil {
		return CancelResult{}, err
	}
	return CancelResult{IngestUUID: ingestID, Cancelled: reply.Cancelled}, nil
}

// ClearIngestHistory drops the recorded history.
func (s Service) ClearIngestHistory(ctx context.Context) error {
	return s.call(ctx, screener.CmdClearIngestHistory, nil, nil)
}

// IngestInfo describes ingest jobs. A single failed job is returned together
// with its error so callers can still show it.
func (s Service) IngestInfo(ctx context.Context, ids []string) (IngestsResult, error) {
	switch len(ids) {
	case 0:
		return IngestsResult{}, &CLIError{Code: ExitUsage, Msg: "ingest id required"}
	case 1:
		if s.Transport == nil {
			return IngestsResult{}, WrapError(ExitRuntime, "not connected", errors.New("no transport"))
		}
		reply, err := s.Transport.Send(ctx, screener.CmdGetIngestInfo, screener.IngestUUIDArgs{IngestUUID: ids[0]})
		if err != nil {
			return IngestsResult{}, WrapError(ExitRuntime, screener.CmdGetIngestInfo.String(), err)
		}
		if reply.Status != screener.StatusSuccess && reply.Status != screener.StatusIngestFailed {
			return IngestsResult{}, ErrorForReply(reply)
		}
		var body screener.IngestInfoReply
		if err := reply.Decode(&body); err != nil {
			return IngestsResult{}, WrapError(ExitRuntime, "decode ingest", err)
		}
		result := IngestsResult{Ingests: []screener.IngestInfo{body.Ingest}}
		if reply.Status == screener.StatusIngestFailed {
			return result, ErrorForReply(reply)
		}
		return result, nil
	default:
		var reply screener.IngestsInfoReply
		if err := s.call(ctx, screener.CmdGetIngestsInfo, screener.IngestUUIDsArgs{IngestUUIDs: ids}, &reply); err != nil {
			return IngestsResult{}, err
		}
		return IngestsResult{Ingests: reply.Ingests}, nil
	}
}

// IngestHistory lists every recorded ingest.
func (s Service) IngestHistory(ctx context.Context) (IngestsResult, error) {
	var reply screener.IngestHistoryReply
	if err := s.call(ctx, screener.CmdGetIngestHistory, nil, &reply); err != nil {
		return IngestsResult{}, err
	}
	return IngestsResult{Ingests: reply.History}, nil
}

// TitleIDs lists ingested composition ids.
func (s Service) TitleIDs(ctx context.Context) (IDsResult, error) {
	var reply screener.CPLUUIDsReply
	if err := s.call(ctx, screener.CmdGetCPLUUIDs, nil, &reply); err != nil {
		return IDsResult{}, err
	}
	return IDsResult{Kind: "cpl", IDs: reply.CPLUUIDs}, nil
}

// Titles describes compositions, every ingested one when ids is empty.
func (s Service) Titles(ctx context.Context, ids []string) (TitlesResult, error) {
	if len(ids) == 1 {
		var reply screener.CPLReply
		if err := s.call(ctx, screener.CmdGetCPL, screener.CPLUUIDArgs{CPLUUID: ids[0]}, &reply); err != nil {
			return TitlesResult{}, err
		}
		return TitlesResult{Titles: []screener.CPL{reply.CPL}}, nil
	}
	if len(ids) == 0 {
		all, err := s.TitleIDs(ctx)
		if err != nil {
			return TitlesResult{}, err
		}
		if len(all.IDs) == 0 {
			return TitlesResult{}, nil
		}
		ids = all.IDs
	}
	var reply screener.CPLsReply
	if err := s.call(ctx, screener.CmdGetCPLs, screener.CPLUUIDsArgs{CPLUUIDs: ids}, &reply); err != nil {
		return TitlesResult{}, err
	}
	return TitlesResult{Titles: reply.CPLs}, nil
}

// PlaylistIDs lists stored playlist ids.
func (s Service) PlaylistIDs(ctx context.Context) (IDsResult, error) {
	var reply screener.PlaylistUUIDsReply
	if err := s.call(ctx, screener.CmdGetPlaylistUUIDs, nil, &reply); err != nil {
		return IDsResult{}, err
	}
	return IDsResult{Kind: "playlist", IDs: reply.PlaylistUUIDs}, nil
}

// Playlists returns playlist documents, every stored one when ids is empty.
func (s Service) Playlists(ctx context.Context, ids []string) (PlaylistsResult, error) {
	if len(ids) == 1 {
		var reply screener.PlaylistReply
		if err := s.call(ctx, screener.CmdGetPlaylist, screener.PlaylistUUIDArgs{PlaylistUUID: ids[0]}, &reply); err != nil {
			return PlaylistsResult{}, err
		}
		return PlaylistsResult{Playlists: []screener.Playlist{reply.Playlist}}, nil
	}
	if len(ids) == 0 {
		all, err := s.PlaylistIDs(ctx)
		if err != nil {
			return PlaylistsResult{}, err
		}
		if len(all.IDs) == 0 {
			return PlaylistsResult{}, nil
		}
		ids = all.IDs
	}
	var reply screener.PlaylistsReply
	if err := s.call(ctx, screener.CmdGetPlaylists, screener.PlaylistUUIDsArgs{PlaylistUUIDs: ids}, &reply); err != nil {
		return PlaylistsResult{}, err
	}
	return PlaylistsResult{Playlists: reply.Playlists}, nil
}

// InsertPlaylist stores a new playlist document.
func (s Service) InsertPlaylist(ctx context.Context, doc []byte) (CreatedResult, error) {
	if !json.Valid(doc) {
		return CreatedResult{}, &CLIError{Code: ExitUsage, Msg: "playlist document is not valid JSON"}
	}
	var reply screener.InsertPlaylistReply
	if err := s.call(ctx, screener.CmdInsertPlaylist, screener.PlaylistContentsArgs{PlaylistContents: doc}, &reply); err != nil {
		return CreatedResult{}, err
	}
	return CreatedResult{Kind: "playlist", ID: reply.PlaylistUUID}, nil
}

// UpdatePlaylist replaces a stored playlist document.
func (s Service) UpdatePlaylist(ctx context.Context, playlistID string, doc []byte) error {
	if !json.Valid(doc) {
		return &CLIError{Code: ExitUsage, Msg: "playlist document is not valid JSON"}
	}
	return s.call(ctx, screener.CmdUpdatePlaylist, screener.PlaylistContentsArgs{PlaylistUUID: playlistID, PlaylistContents: doc}, nil)
}

// DeletePlaylist removes a playlist.
func (s Service) DeletePlaylist(ctx context.Context, playlistID string) error {
	return s.call(ctx, screener.CmdDeletePlaylist, screener.PlaylistUUIDArgs{PlaylistUUID: playlistID}, nil)
}

// ScheduleCPL schedules a composition at start.
func (s Service) ScheduleCPL(ctx context.Context, cplID string, start int64) (CreatedResult, error) {
	var reply screener.ScheduleCreatedReply
	if err := s.call(ctx, screener.CmdScheduleCPL, screener.ScheduleCPLArgs{CPLUUID: cplID, StartTime: start}, &reply); err != nil {
		return CreatedResult{}, err
	}
	return CreatedResult{Kind: "schedule", ID: reply.ScheduleUUID}, nil
}

// SchedulePlaylist schedules a playlist at start.
func (s Service) SchedulePlaylist(ctx context.Context, playlistID string, start int64) (CreatedResult, error) {
	var reply screener.ScheduleCreatedReply
	if err := s.call(ctx, screener.CmdSchedulePlaylist, screener.SchedulePlaylistArgs{PlaylistUUID: playlistID, StartTime: start}, &reply); err != nil {
		return CreatedResult{}, err
	}
	return CreatedResult{Kind: "schedule", ID: reply.ScheduleUUID}, nil
}

// ScheduleIDs lists schedule ids in start order.
func (s Service) ScheduleIDs(ctx context.Context) (IDsResult, error) {
	var reply screener.ScheduleUUIDsReply
	if err := s.call(ctx, screener.CmdGetScheduleUUIDs, nil, &reply); err != nil {
		return IDsResult{}, err
	}
	return IDsResult{Kind: "schedule", IDs: reply.ScheduleUUIDs}, nil
}

// Schedules returns schedule entries, every one when ids is empty.
func (s Service) Schedules(ctx context.Context, ids []string) (SchedulesResult, error) {
	if len(ids) == 1 {
		var reply screener.ScheduleReply
		if err := s.call(ctx, screener.CmdGetSchedule, screener.ScheduleUUIDArgs{ScheduleUUID: ids[0]}, &reply); err != nil {
			return SchedulesResult{}, err
		}
		return SchedulesResult{Schedules: []screener.ScheduleEntry{reply.Schedule}}, nil
	}
	if len(ids) == 0 {
		all, err := s.ScheduleIDs(ctx)
		if err != nil {
			return SchedulesResult{}, err
		}
		if len(all.IDs) == 0 {
			return SchedulesResult{}, nil
		}
		ids = all.IDs
	}
	var reply screener.SchedulesReply
	if err := s.call(ctx, screener.CmdGetSchedules, screener.ScheduleUUIDsArgs{ScheduleUUIDs: ids}, &reply); err != nil {
		return SchedulesResult{}, err
	}
	return SchedulesResult{Schedules: reply.Schedules}, nil
}

// DeleteSchedule removes a schedule entry.
func (s Service) DeleteSchedule(ctx context.Context, scheduleID string) error {
	return s.call(ctx, screener.CmdDeleteSchedule, screener.ScheduleUUIDArgs{ScheduleUUID: scheduleID}, nil)
}

// SetMode switches between SCHEDULE and MANUAL.
func (s Service) SetMode(ctx context.Context, mode string) (ModeResult, error) {
	var reply screener.ModeReply
	if err := s.call(ctx, screener.CmdSetMode, screener.ModeArgs{Mode: mode}, &reply); err != nil {
		return ModeResult{}, err
	}
	return ModeResult{Mode: reply.Mode}, nil
}

// Mode returns the schedule mode.
func (s Service) Mode(ctx context.Context) (ModeResult, error) {
	var reply screener.ModeReply
	if err := s.call(ctx, screener.CmdGetMode, nil, &reply); err != nil {
		return ModeResult{}, err
	}
	return ModeResult{Mode: reply.Mode}, nil
}

// ParseStart reads a schedule start time: unix seconds, RFC 3339, or a
// duration from now such as "+90m".
func (s Service) ParseStart(arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "start time required"}
	}
	if strings.HasPrefix(arg, "+") {
		d, err := time.ParseDuration(arg[1:])
		if err != nil {
			return 0, WrapError(ExitUsage, "invalid start offset", err)
		}
		if s.Clock == nil {
			return 0, &CLIError{Code: ExitRuntime, Msg: "no clock for relative start"}
		}
		return s.Clock.NowUnix() + int64(d/time.Second), nil
	}
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, arg)
	if err != nil {
		return 0, WrapError(ExitUsage, fmt.Sprintf("invalid start time %q", arg), err)
	}
	return t.Unix(), nil
}

// Watch streams decoded notifications until ctx is done.
func (s Service) Watch(ctx context.Context, filter string) (<-chan EventResult, error) {
	if s.Notifications == nil {
		return nil, &CLIError{Code: ExitUsage, Msg: "broker is required to watch (set --broker or config)"}
	}
	msgs, err := s.Notifications.Watch(ctx, filter)
	if err != nil {
		return nil, WrapError(ExitRuntime, "watch", err)
	}
	out := make(chan EventResult)
	go func() {
		defer close(out)
		for msg := range msgs {
			select {
			case out <- DecodeEvent(msg):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// DecodeEvent classifies a notification by its topic.
func DecodeEvent(msg ports.Notification) EventResult {
	evt := EventResult{Topic: msg.Topic, Raw: msg.Payload}
	switch {
	case strings.HasSuffix(msg.Topic, "/progress"):
		var p screener.IngestProgressEvent
		if json.Unmarshal(msg.Payload, &p) == nil {
			evt.Progress = &p
		}
	case strings.HasSuffix(msg.Topic, "/playback/state"):
		var p screener.PlaybackStateEvent
		if json.Unmarshal(msg.Payload, &p) == nil {
			evt.Playback = &p
		}
	case strings.HasSuffix(msg.Topic, "/state"):
		var p screener.IngestStateEvent
		if json.Unmarshal(msg.Payload, &p) == nil {
			evt.Ingest = &p
		}
	}
	return evt
}
