package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/mikey-austin/screener/internal/dcp/dcptest"
	"github.com/mikey-austin/screener/pkg/screener"
)

func (f *fixture) call(t *testing.T, cmd screener.Command, args any) screener.Reply {
	t.Helper()
	payload, err := screener.EncodeArgs(args)
	if err != nil {
		t.Fatalf("encode args: %v", err)
	}
	reply, err := f.screener.Dispatch(context.Background(), cmd, payload)
	if err != nil {
		t.Fatalf("dispatch %s: %v", cmd, err)
	}
	return reply
}

func decodeBody[T any](t *testing.T, reply screener.Reply) T {
	t.Helper()
	var out T
	if err := reply.Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, reply screener.Reply, status screener.Status) {
	t.Helper()
	if reply.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, reply.Status, reply.Trace)
	}
}

// ingestTitle runs a single title package through the worker.
func (f *fixture) ingestTitle(t *testing.T, path, text string) string {
	t.Helper()
	pkg := dcptest.Simple(text)
	f.transfer.add(path, pkg)
	reply := f.call(t, screener.CmdIngest, screener.IngestArgs{DCPPath: path})
	expectStatus(t, reply, screener.StatusSuccess)
	f.waitState(t, decodeBody[screener.IngestReply](t, reply).IngestUUID, screener.IngestDone)
	return pkg.Titles[0].ID
}

func playlistDoc(cplID string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{
		"title": "Evening show",
		"duration": 20,
		"events": [
			{"id": "pause-1", "type": "pause", "duration_in_seconds": 5},
			{"id": "feature", "type": "composition", "cpl_id": %q, "text": "Feature",
			 "duration_in_frames": 240, "edit_rate": [24, 1]}
		]
	}`, cplID))
}

func TestEveryCommandHasHandler(t *testing.T) {
	f := newFixture(t)
	for _, cmd := range screener.Commands() {
		if !f.screener.Handles(cmd) {
			t.Fatalf("expected handler for %s", cmd)
		}
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	f := newFixture(t)
	_, err := f.screener.Dispatch(context.Background(), screener.Command(0x7f), nil)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("expected unknown command, got %v", err)
	}
}

func TestEmptyServerHasNoTitles(t *testing.T) {
	f := newFixture(t)
	reply := f.call(t, screener.CmdGetCPLUUIDs, nil)
	expectStatus(t, reply, screener.StatusSuccess)
	if ids := decodeBody[screener.CPLUUIDsReply](t, reply).CPLUUIDs; len(ids) != 0 {
		t.Fatalf("expected no titles, got %v", ids)
	}
}

func TestIngestHistoryOrder(t *testing.T) {
	f := newFixture(t)
	f.transfer.add("features/pathA", dcptest.Simple("Feature"))

	reply := f.call(t, screener.CmdIngest, screener.IngestArgs{DCPPath: "/features/pathA/"})
	expectStatus(t, reply, screener.StatusSuccess)
	id := decodeBody[screener.IngestReply](t, reply).IngestUUID

	info := decodeBody[screener.IngestInfoReply](t, f.call(t, screener.CmdGetIngestInfo, screener.IngestUUIDArgs{IngestUUID: id})).Ingest
	if len(info.History) == 0 || info.History[0].State != screener.IngestQueued {
		t.Fatalf("expected QUEUED first, got %+v", info.History)
	}

	f.waitState(t, id, screener.IngestDone)
	info = decodeBody[screener.IngestInfoReply](t, f.call(t, screener.CmdGetIngestInfo, screener.IngestUUIDArgs{IngestUUID: id})).Ingest
	want := []string{screener.IngestQueued, screener.IngestRunning, screener.IngestDone}
	if len(info.History) != len(want) {
		t.Fatalf("expected history %v, got %+v", want, info.History)
	}
	for i, entry := range info.History {
		if entry.State != want[i] {
			t.Fatalf("expected history %v, got %+v", want, info.History)
		}
	}

	dup := decodeBody[screener.IngestReply](t, f.call(t, screener.CmdIngest, screener.IngestArgs{DCPPath: "features/pathA"}))
	if dup.IngestUUID != id || !dup.Duplicate {
		t.Fatalf("expected duplicate of %s, got %+v", id, dup)
	}
}

func TestFailedIngestReportsIngestFailed(t *testing.T) {
	f := newFixture(t)
	reply := f.call(t, screener.CmdIngest, screener.IngestArgs{DCPPath: "missing"})
	id := decodeBody[screener.IngestReply](t, reply).IngestUUID
	f.waitState(t, id, screener.IngestFailed)

	reply = f.call(t, screener.CmdGetIngestInfo, screener.IngestUUIDArgs{IngestUUID: id})
	expectStatus(t, reply, screener.StatusIngestFailed)
	if reply.Trace == "" {
		t.Fatalf("expected trace on failed ingest")
	}
	if info := decodeBody[screener.IngestInfoReply](t, reply).Ingest; info.IngestUUID != id {
		t.Fatalf("expected ingest body, got %+v", info)
	}
	if ids := f.content.TitleIDs(); len(ids) != 0 {
		t.Fatalf("expected no titles, got %v", ids)
	}
}

func TestIngestQueriesUnknown(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.call(t, screener.CmdGetIngestInfo, screener.IngestUUIDArgs{IngestUUID: "nope"}), screener.StatusIngestNotFound)
	expectStatus(t, f.call(t, screener.CmdGetIngestsInfo, screener.IngestUUIDsArgs{IngestUUIDs: []string{"nope"}}), screener.StatusIngestNotFound)
	expectStatus(t, f.call(t, screener.CmdCancelIngest, screener.IngestUUIDArgs{IngestUUID: "nope"}), screener.StatusIngestNotFound)
	expectStatus(t, f.call(t, screener.CmdIngest, screener.IngestArgs{}), screener.StatusInvalidArguments)
	expectStatus(t, f.call(t, screener.CmdClearIngestHistory, nil), screener.StatusSuccess)
}

func TestTitleQueries(t *testing.T) {
	f := newFixture(t)
	id := f.ingestTitle(t, "pkg", "Feature")

	reply := f.call(t, screener.CmdGetCPL, screener.CPLUUIDArgs{CPLUUID: id})
	expectStatus(t, reply, screener.StatusSuccess)
	cpl := decodeBody[screener.CPLReply](t, reply).CPL
	if cpl.UUID != id || cpl.ContentTitleText != "Feature" {
		t.Fatalf("expected feature cpl, got %+v", cpl)
	}

	reply = f.call(t, screener.CmdGetCPLs, screener.CPLUUIDsArgs{CPLUUIDs: []string{"unknown", id}})
	expectStatus(t, reply, screener.StatusSuccess)
	if cpls := decodeBody[screener.CPLsReply](t, reply).CPLs; len(cpls) != 1 || cpls[0].UUID != id {
		t.Fatalf("expected unknown id skipped, got %+v", cpls)
	}

	expectStatus(t, f.call(t, screener.CmdGetCPL, screener.CPLUUIDArgs{CPLUUID: "unknown"}), screener.StatusCPLNotFound)
}

func TestPlaybackCommands(t *testing.T) {
	f := newFixture(t)
	id := f.ingestTitle(t, "pkg", "Feature")

	expectStatus(t, f.call(t, screener.CmdPlay, nil), screener.StatusNothingLoaded)
	expectStatus(t, f.call(t, screener.CmdLoadCPL, screener.LoadCPLArgs{CPLUUID: "unknown"}), screener.StatusCPLNotFound)
	expectStatus(t, f.call(t, screener.CmdLoadCPL, screener.LoadCPLArgs{CPLUUID: id}), screener.StatusSuccess)
	expectStatus(t, f.call(t, screener.CmdPlay, nil), screener.StatusSuccess)

	status := decodeBody[screener.StatusReply](t, f.call(t, screener.CmdStatus, nil))
	if status.State != screener.StatePlay || status.CPLUUID != id || status.Title != "Feature" {
		t.Fatalf("expected feature playing, got %+v", status)
	}

	expectStatus(t, f.call(t, screener.CmdSkipForward, nil), screener.StatusCPLLoaded)
	expectStatus(t, f.call(t, screener.CmdSkipToPosition, screener.SkipToPositionArgs{Position: 10}), screener.StatusCPLLoaded)
	expectStatus(t, f.call(t, screener.CmdEject, nil), screener.StatusSuccess)
	expectStatus(t, f.call(t, screener.CmdSkipToPosition, screener.SkipToPositionArgs{Position: 10}), screener.StatusNothingLoaded)
}

func TestPlaylistPlayback(t *testing.T) {
	f := newFixture(t)
	id := f.ingestTitle(t, "pkg", "Feature")

	reply := f.call(t, screener.CmdInsertPlaylist, screener.PlaylistContentsArgs{PlaylistContents: playlistDoc(id)})
	expectStatus(t, reply, screener.StatusSuccess)
	plID := decodeBody[screener.InsertPlaylistReply](t, reply).PlaylistUUID

	expectStatus(t, f.call(t, screener.CmdLoadPlaylist, screener.LoadPlaylistArgs{PlaylistUUID: plID}), screener.StatusSuccess)
	expectStatus(t, f.call(t, screener.CmdSkipForward, nil), screener.StatusSuccess)
	status := decodeBody[screener.StatusReply](t, f.call(t, screener.CmdStatus, nil))
	if status.EventID != "feature" || status.EventIndex == nil || *status.EventIndex != 1 {
		t.Fatalf("expected feature event, got %+v", status)
	}
	expectStatus(t, f.call(t, screener.CmdSkipForward, nil), screener.StatusEventNotFound)
	expectStatus(t, f.call(t, screener.CmdSkipToEvent, screener.SkipToEventArgs{EventID: "pause-1"}), screener.StatusSuccess)
	expectStatus(t, f.call(t, screener.CmdSkipToPosition, screener.SkipToPositionArgs{Position: 1}), screener.StatusNotImplemented)
}

func TestLoadPlaylistRequiresIngestedTitles(t *testing.T) {
	f := newFixture(t)
	reply := f.call(t, screener.CmdInsertPlaylist, screener.PlaylistContentsArgs{PlaylistContents: playlistDoc(uuid.NewString())})
	expectStatus(t, reply, screener.StatusSuccess)
	plID := decodeBody[screener.InsertPlaylistReply](t, reply).PlaylistUUID

	reply = f.call(t, screener.CmdLoadPlaylist, screener.LoadPlaylistArgs{PlaylistUUID: plID})
	expectStatus(t, reply, screener.StatusInvalidPlaylist)
	if reply.Trace == "" {
		t.Fatalf("expected trace naming the missing cpl")
	}
	if status := f.player.Status(); status.State != screener.StateEject {
		t.Fatalf("expected player ejected, got %+v", status)
	}
	expectStatus(t, f.call(t, screener.CmdLoadPlaylist, screener.LoadPlaylistArgs{PlaylistUUID: "unknown"}), screener.StatusPlaylistNotFound)
}

func TestInsertEmptyPlaylist(t *testing.T) {
	f := newFixture(t)
	reply := f.call(t, screener.CmdInsertPlaylist, screener.PlaylistContentsArgs{PlaylistContents: json.RawMessage(`""`)})
	expectStatus(t, reply, screener.StatusInvalidPlaylist)
	if reply.Trace == "" {
		t.Fatalf("expected validation trace")
	}
	if ids := decodeBody[screener.PlaylistUUIDsReply](t, f.call(t, screener.CmdGetPlaylistUUIDs, nil)).PlaylistUUIDs; len(ids) != 0 {
		t.Fatalf("expected no playlists, got %v", ids)
	}
}

func TestPlaylistCRUD(t *testing.T) {
	f := newFixture(t)
	cplID := uuid.NewString()
	plID := decodeBody[screener.InsertPlaylistReply](t, f.call(t, screener.CmdInsertPlaylist, screener.PlaylistContentsArgs{PlaylistContents: playlistDoc(cplID)})).PlaylistUUID

	updated := json.RawMessage(`{"title": "Matinee", "duration": 0, "events": []}`)
	expectStatus(t, f.call(t, screener.CmdUpdatePlaylist, screener.PlaylistContentsArgs{PlaylistUUID: plID, PlaylistContents: updated}), screener.StatusSuccess)

	pl := decodeBody[screener.PlaylistReply](t, f.call(t, screener.CmdGetPlaylist, screener.PlaylistUUIDArgs{PlaylistUUID: plID})).Playlist
	if pl.Title != "Matinee" || pl.UUID != plID {
		t.Fatalf("expected updated playlist, got %+v", pl)
	}
	expectStatus(t, f.call(t, screener.CmdGetPlaylists, screener.PlaylistUUIDsArgs{PlaylistUUIDs: []string{plID, "unknown"}}), screener.StatusPlaylistNotFound)
	expectStatus(t, f.call(t, screener.CmdDeletePlaylist, screener.PlaylistUUIDArgs{PlaylistUUID: plID}), screener.StatusSuccess)
	expectStatus(t, f.call(t, screener.CmdDeletePlaylist, screener.PlaylistUUIDArgs{PlaylistUUID: plID}), screener.StatusPlaylistNotFound)
	expectStatus(t, f.call(t, screener.CmdUpdatePlaylist, screener.PlaylistContentsArgs{PlaylistUUID: plID, PlaylistContents: updated}), screener.StatusPlaylistNotFound)
}

func TestScheduleCommands(t *testing.T) {
	f := newFixture(t)
	reply := f.call(t, screener.CmdScheduleCPL, screener.ScheduleCPLArgs{CPLUUID: uuid.NewString(), StartTime: 100})
	expectStatus(t, reply, screener.StatusCPLNotFound)
	if reply.ErrMsg != "CPL not found" {
		t.Fatalf("expected CPL not found message, got %q", reply.ErrMsg)
	}

	id := f.ingestTitle(t, "pkg", "Feature")
	first := decodeBody[screener.ScheduleCreatedReply](t, f.call(t, screener.CmdScheduleCPL, screener.ScheduleCPLArgs{CPLUUID: id, StartTime: 200})).ScheduleUUID
	second := decodeBody[screener.ScheduleCreatedReply](t, f.call(t, screener.CmdScheduleCPL, screener.ScheduleCPLArgs{CPLUUID: id, StartTime: 100})).ScheduleUUID
	if first == "" || first == second {
		t.Fatalf("expected distinct schedule ids, got %q and %q", first, second)
	}

	ids := decodeBody[screener.ScheduleUUIDsReply](t, f.call(t, screener.CmdGetScheduleUUIDs, nil)).ScheduleUUIDs
	if len(ids) != 2 || ids[0] != second {
		t.Fatalf("expected earliest start first, got %v", ids)
	}
	entry := decodeBody[screener.ScheduleReply](t, f.call(t, screener.CmdGetSchedule, screener.ScheduleUUIDArgs{ScheduleUUID: first})).Schedule
	if entry.CPLUUID != id || entry.StartTime != 200 {
		t.Fatalf("expected scheduled title, got %+v", entry)
	}

	expectStatus(t, f.call(t, screener.CmdSchedulePlaylist, screener.SchedulePlaylistArgs{PlaylistUUID: "unknown"}), screener.StatusPlaylistNotFound)
	expectStatus(t, f.call(t, screener.CmdDeleteSchedule, screener.ScheduleUUIDArgs{ScheduleUUID: first}), screener.StatusSuccess)
	expectStatus(t, f.call(t, screener.CmdGetSchedule, screener.ScheduleUUIDArgs{ScheduleUUID: first}), screener.StatusScheduleNotFound)
	expectStatus(t, f.call(t, screener.CmdGetSchedules, screener.ScheduleUUIDsArgs{ScheduleUUIDs: []string{first}}), screener.StatusScheduleNotFound)
}

func TestModeCommands(t *testing.T) {
	f := newFixture(t)
	if mode := decodeBody[screener.ModeReply](t, f.call(t, screener.CmdGetMode, nil)).Mode; mode != screener.ModeSchedule {
		t.Fatalf("expected SCHEDULE, got %q", mode)
	}
	reply := f.call(t, screener.CmdSetMode, screener.ModeArgs{Mode: "manual"})
	expectStatus(t, reply, screener.StatusSuccess)
	if mode := decodeBody[screener.ModeReply](t, reply).Mode; mode != screener.ModeManual {
		t.Fatalf("expected MANUAL, got %q", mode)
	}
	expectStatus(t, f.call(t, screener.CmdSetMode, screener.ModeArgs{Mode: "loop"}), screener.StatusInvalidMode)
}

func TestSystemTime(t *testing.T) {
	f := newFixture(t)
	reply := f.call(t, screener.CmdSystemTime, nil)
	if got := decodeBody[screener.SystemTimeReply](t, reply).Time; got != fixedNow.Unix() {
		t.Fatalf("expected %d, got %d", fixedNow.Unix(), got)
	}
}

func TestMalformedArguments(t *testing.T) {
	f := newFixture(t)
	reply, err := f.screener.Dispatch(context.Background(), screener.CmdLoadCPL, []byte(`{"cpl_uuid":`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	expectStatus(t, reply, screener.StatusInvalidArguments)
	if reply.Trace == "" {
		t.Fatalf("expected trace for malformed arguments")
	}
}
