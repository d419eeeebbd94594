// Package server exposes the emulated playback server over the KLV wire
// protocol: the command dispatch table and the TCP listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/modules/content"
	"github.com/mikey-austin/screener/internal/modules/playback"
	"github.com/mikey-austin/screener/internal/modules/playlist"
	"github.com/mikey-austin/screener/internal/modules/schedule"
	"github.com/mikey-austin/screener/pkg/screener"
)

// ErrUnknownCommand reports a command code without a handler. It is a
// protocol violation, not a reply status.
var ErrUnknownCommand = errors.New("unknown command")

// Handler serves one command. Failures are returned as reply statuses.
type Handler func(ctx context.Context, args json.RawMessage) screener.Reply

// Deps are the subsystems the commands act on.
type Deps struct {
	Content   *content.Service
	Playlists *playlist.Store
	Schedules *schedule.Store
	Player    *playback.Engine
	Now       func() time.Time
}

// Screener routes decoded commands to the subsystems.
type Screener struct {
	log      *zap.Logger
	deps     Deps
	handlers map[screener.Command]Handler
}

// NewScreener builds the dispatch table.
func NewScreener(log *zap.Logger, deps Deps) (*Screener, error) {
	if deps.Content == nil || deps.Playlists == nil || deps.Schedules == nil || deps.Player == nil {
		return nil, errors.New("content, playlists, schedules and player are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Screener{log: log, deps: deps}
	s.handlers = map[screener.Command]Handler{
		screener.CmdPlay:           noArgs(deps.Player.Play),
		screener.CmdStop:           noArgs(deps.Player.Stop),
		screener.CmdPause:          noArgs(deps.Player.Pause),
		screener.CmdEject:          noArgs(deps.Player.Eject),
		screener.CmdSkipForward:    noArgs(deps.Player.SkipForward),
		screener.CmdSkipBackward:   noArgs(deps.Player.SkipBackward),
		screener.CmdStatus:         s.status,
		screener.CmdSystemTime:     s.systemTime,
		screener.CmdLoadCPL:        withArgs(s.loadCPL),
		screener.CmdLoadPlaylist:   withArgs(s.loadPlaylist),
		screener.CmdSkipToPosition: withArgs(s.skipToPosition),
		screener.CmdSkipToEvent:    withArgs(s.skipToEvent),

		screener.CmdIngest:             withArgs(s.ingest),
		screener.CmdCancelIngest:       withArgs(s.cancelIngest),
		screener.CmdClearIngestHistory: s.clearIngestHistory,
		screener.CmdGetIngestHistory:   s.getIngestHistory,
		screener.CmdGetIngestsInfo:     withArgs(s.getIngestsInfo),
		screener.CmdGetIngestInfo:      s.getIngestInfo,
		screener.CmdGetCPLUUIDs:        s.getCPLUUIDs,
		screener.CmdGetCPLs:            withArgs(s.getCPLs),
		screener.CmdGetCPL:             withArgs(s.getCPL),

		screener.CmdInsertPlaylist:   withArgs(s.insertPlaylist),
		screener.CmdUpdatePlaylist:   withArgs(s.updatePlaylist),
		screener.CmdDeletePlaylist:   withArgs(s.deletePlaylist),
		screener.CmdGetPlaylistUUIDs: s.getPlaylistUUIDs,
		screener.CmdGetPlaylists:     withArgs(s.getPlaylists),
		screener.CmdGetPlaylist:      withArgs(s.getPlaylist),

		screener.CmdScheduleCPL:      withArgs(s.scheduleCPL),
		screener.CmdSchedulePlaylist: withArgs(s.schedulePlaylist),
		screener.CmdDeleteSchedule:   withArgs(s.deleteSchedule),
		screener.CmdGetScheduleUUIDs: s.getScheduleUUIDs,
		screener.CmdGetSchedules:     withArgs(s.getSchedules),
		screener.CmdGetSchedule:      withArgs(s.getSchedule),
		screener.CmdSetMode:          withArgs(s.setMode),
		screener.CmdGetMode:          s.getMode,
	}
	return s, nil
}

// Dispatch runs the handler for cmd.
func (s *Screener) Dispatch(ctx context.Context, cmd screener.Command, payload []byte) (screener.Reply, error) {
	handler, ok := s.handlers[cmd]
	if !ok {
		return screener.Reply{}, fmt.Errorf("%w: 0x%02x", ErrUnknownCommand, byte(cmd))
	}
	reply := handler(ctx, payload)
	if reply.Status != screener.StatusSuccess {
		s.log.Debug("command failed",
			zap.Stringer("command", cmd),
			zap.Int("status", int(reply.Status)),
			zap.String("trace", reply.Trace))
	}
	return reply, nil
}

// Handles reports whether cmd has a handler.
func (s *Screener) Handles(cmd screener.Command) bool {
	_, ok := s.handlers[cmd]
	return ok
}

func noArgs(fn func() error) Handler {
	return func(context.Context, json.RawMessage) screener.Reply {
		if err := fn(); err != nil {
			return failure(err)
		}
		return screener.OK(nil)
	}
}

func withArgs[T any](fn func(ctx context.Context, args T) (any, error)) Handler {
	return func(ctx context.Context, payload json.RawMessage) screener.Reply {
		var args T
		if err := screener.DecodeArgs(payload, &args); err != nil {
			return failure(fmt.Errorf("%w: %v", errInvalidArgs, err))
		}
		body, err := fn(ctx, args)
		if err != nil {
			return failure(err)
		}
		return screener.OK(body)
	}
}

func (s *Screener) status(context.Context, json.RawMessage) screener.Reply {
	return screener.OK(s.deps.Player.Status())
}

func (s *Screener) systemTime(context.Context, json.RawMessage) screener.Reply {
	return screener.OK(screener.SystemTimeReply{Time: s.deps.Now().Unix()})
}

func (s *Screener) loadCPL(_ context.Context, args screener.LoadCPLArgs) (any, error) {
	return nil, s.deps.Player.LoadTitle(args.CPLUUID)
}

func (s *Screener) loadPlaylist(_ context.Context, args screener.LoadPlaylistArgs) (any, error) {
	return nil, s.deps.Player.LoadPlaylist(args.PlaylistUUID)
}

func (s *Screener) skipToPosition(_ context.Context, args screener.SkipToPositionArgs) (any, error) {
	return nil, s.deps.Player.SkipToPosition(args.Position)
}

func (s *Screener) skipToEvent(_ context.Context, args screener.SkipToEventArgs) (any, error) {
	return nil, s.deps.Player.SkipToEvent(args.EventID)
}

func (s *Screener) ingest(_ context.Context, args screener.IngestArgs) (any, error) {
	id, dup, err := s.deps.Content.Ingest(args)
	if err != nil {
		return nil, err
	}
	return screener.IngestReply{IngestUUID: id, Duplicate: dup}, nil
}

func (s *Screener) cancelIngest(_ context.Context, args screener.IngestUUIDArgs) (any, error) {
	cancelled, err := s.deps.Content.CancelIngest(args.IngestUUID)
	if err != nil {
		return nil, err
	}
	return screener.CancelIngestReply{Cancelled: cancelled}, nil
}

func (s *Screener) clearIngestHistory(context.Context, json.RawMessage) screener.Reply {
	if err := s.deps.Content.ClearIngestHistory(); err != nil {
		return failure(err)
	}
	return screener.OK(nil)
}

func (s *Screener) getIngestHistory(context.Context, json.RawMessage) screener.Reply {
	return screener.OK(screener.IngestHistoryReply{History: s.deps.Content.IngestHistory()})
}

func (s *Screener) getIngestsInfo(_ context.Context, args screener.IngestUUIDsArgs) (any, error) {
	infos, err := s.deps.Content.IngestsInfo(args.IngestUUIDs)
	if err != nil {
		return nil, err
	}
	return screener.IngestsInfoReply{Ingests: infos}, nil
}

// getIngestInfo reports a failed job as status 13 with its record attached.
func (s *Screener) getIngestInfo(_ context.Context, payload json.RawMessage) screener.Reply {
	var args screener.IngestUUIDArgs
	if err := screener.DecodeArgs(payload, &args); err != nil {
		return failure(fmt.Errorf("%w: %v", errInvalidArgs, err))
	}
	info, err := s.deps.Content.IngestInfo(args.IngestUUID)
	if err != nil {
		return failure(err)
	}
	body := screener.IngestInfoReply{Ingest: info}
	if info.State == screener.IngestFailed {
		return screener.Fail(screener.StatusIngestFailed).WithBody(body).WithTrace(info.Error)
	}
	return screener.OK(body)
}

func (s *Screener) getCPLUUIDs(context.Context, json.RawMessage) screener.Reply {
	return screener.OK(screener.CPLUUIDsReply{CPLUUIDs: s.deps.Content.TitleIDs()})
}

func (s *Screener) getCPLs(_ context.Context, args screener.CPLUUIDsArgs) (any, error) {
	titles := s.deps.Content.Titles(args.CPLUUIDs)
	cpls := make([]screener.CPL, 0, len(titles))
	for _, title := range titles {
		cpls = append(cpls, title.Info())
	}
	return screener.CPLsReply{CPLs: cpls}, nil
}

func (s *Screener) getCPL(_ context.Context, args screener.CPLUUIDArgs) (any, error) {
	title, err := s.deps.Content.Title(args.CPLUUID)
	if err != nil {
		return nil, err
	}
	return screener.CPLReply{CPL: title.Info()}, nil
}

func (s *Screener) insertPlaylist(_ context.Context, args screener.PlaylistContentsArgs) (any, error) {
	id, err := s.deps.Playlists.Insert(args.PlaylistContents)
	if err != nil {
		return nil, err
	}
	return screener.InsertPlaylistReply{PlaylistUUID: id}, nil
}

func (s *Screener) updatePlaylist(_ context.Context, args screener.PlaylistContentsArgs) (any, error) {
	return nil, s.deps.Playlists.Update(args.PlaylistUUID, args.PlaylistContents)
}

func (s *Screener) deletePlaylist(_ context.Context, args screener.PlaylistUUIDArgs) (any, error) {
	return nil, s.deps.Playlists.Delete(args.PlaylistUUID)
}

func (s *Screener) getPlaylistUUIDs(context.Context, json.RawMessage) screener.Reply {
	return screener.OK(screener.PlaylistUUIDsReply{PlaylistUUIDs: s.deps.Playlists.IDs()})
}

func (s *Screener) getPlaylists(_ context.Context, args screener.PlaylistUUIDsArgs) (any, error) {
	pls, err := s.deps.Playlists.GetMany(args.PlaylistUUIDs)
	if err != nil {
		return nil, err
	}
	return screener.PlaylistsReply{Playlists: pls}, nil
}

func (s *Screener) getPlaylist(_ context.Context, args screener.PlaylistUUIDArgs) (any, error) {
	pl, err := s.deps.Playlists.Get(args.PlaylistUUID)
	if err != nil {
		return nil, err
	}
	return screener.PlaylistReply{Playlist: pl}, nil
}

func (s *Screener) scheduleCPL(_ context.Context, args screener.ScheduleCPLArgs) (any, error) {
	id, err := s.deps.Schedules.ScheduleTitle(args.CPLUUID, args.StartTime)
	if err != nil {
		return nil, err
	}
	return screener.ScheduleCreatedReply{ScheduleUUID: id}, nil
}

func (s *Screener) schedulePlaylist(_ context.Context, args screener.SchedulePlaylistArgs) (any, error) {
	id, err := s.deps.Schedules.SchedulePlaylist(args.PlaylistUUID, args.StartTime)
	if err != nil {
		return nil, err
	}
	return screener.ScheduleCreatedReply{ScheduleUUID: id}, nil
}

func (s *Screener) deleteSchedule(_ context.Context, args screener.ScheduleUUIDArgs) (any, error) {
	return nil, s.deps.Schedules.Delete(args.ScheduleUUID)
}

func (s *Screener) getScheduleUUIDs(context.Context, json.RawMessage) screener.Reply {
	return screener.OK(screener.ScheduleUUIDsReply{ScheduleUUIDs: s.deps.Schedules.IDs()})
}

func (s *Screener) getSchedules(_ context.Context, args screener.ScheduleUUIDsArgs) (any, error) {
	entries, err := s.deps.Schedules.GetMany(args.ScheduleUUIDs)
	if err != nil {
		return nil, err
	}
	return screener.SchedulesReply{Schedules: entries}, nil
}

func (s *Screener) getSchedule(_ context.Context, args screener.ScheduleUUIDArgs) (any, error) {
	entry, err := s.deps.Schedules.Get(args.ScheduleUUID)
	if err != nil {
		return nil, err
	}
	return screener.ScheduleReply{Schedule: entry}, nil
}

func (s *Screener) setMode(_ context.Context, args screener.ModeArgs) (any, error) {
	if err := s.deps.Schedules.SetMode(args.Mode); err != nil {
		return nil, err
	}
	return screener.ModeReply{Mode: s.deps.Schedules.Mode()}, nil
}

func (s *Screener) getMode(context.Context, json.RawMessage) screener.Reply {
	return screener.OK(screener.ModeReply{Mode: s.deps.Schedules.Mode()})
}
