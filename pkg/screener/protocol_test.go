package screener

import (
	"encoding/json"
	"testing"
)

func TestKeyCarriesCommand(t *testing.T) {
	key := Key(CmdGetPlaylistUUIDs)
	if len(key) != 16 {
		t.Fatalf("expected 16 byte key, got %d", len(key))
	}
	if !HasSignature(key) {
		t.Fatalf("expected signature prefix")
	}
	for i := len(Signature); i < CommandIndex; i++ {
		if key[i] != 0 {
			t.Fatalf("expected reserved byte %d to be zero", i)
		}
	}
	cmd, err := CommandFromKey(key)
	if err != nil {
		t.Fatalf("command from key: %v", err)
	}
	if cmd != CmdGetPlaylistUUIDs {
		t.Fatalf("expected get_playlist_uuids, got %s", cmd)
	}
}

func TestCommandFromKeyAcceptsZeroPrefix(t *testing.T) {
	key := make([]byte, 16)
	key[CommandIndex] = byte(CmdStatus)
	cmd, err := CommandFromKey(key)
	if err != nil || cmd != CmdStatus {
		t.Fatalf("expected status command, got %s %v", cmd, err)
	}
	if HasSignature(key) {
		t.Fatalf("expected zero prefix to lack signature")
	}
	if _, err := CommandFromKey(key[:10]); err == nil {
		t.Fatalf("expected short key error")
	}
}

func TestCommandNames(t *testing.T) {
	if CmdSkipToEvent.String() != "skip_to_event" {
		t.Fatalf("unexpected name %s", CmdSkipToEvent)
	}
	if Command(0x7f).String() != "unknown(0x7f)" {
		t.Fatalf("unexpected unknown name %s", Command(0x7f))
	}
	cmds := Commands()
	if len(cmds) != 35 {
		t.Fatalf("expected 35 commands, got %d", len(cmds))
	}
	for i := 1; i < len(cmds); i++ {
		if cmds[i-1] >= cmds[i] {
			t.Fatalf("expected commands ordered by code")
		}
	}
}

func TestStatusMessagesStable(t *testing.T) {
	expected := map[Status]string{
		StatusSuccess:          "",
		StatusCPLNotFound:      "CPL not found",
		StatusPlaylistNotFound: "Playlist not found",
		StatusNothingLoaded:    "No CPL or Playlist loaded",
		StatusCPLLoaded:        "CPL loaded. Load a playlist to skip",
		StatusNoPlaylistLoaded: "No playlist loaded",
		StatusPositionNotFound: "Position not found",
		StatusEventNotFound:    "Playlist event not found",
		StatusInvalidPlaylist:  "Invalid playlist supplied",
		StatusInvalidMode:      "Schedule mode not recognised",
		StatusScheduleNotFound: "Schedule not found",
		StatusIngestNotFound:   "Ingest not found",
	}
	for status, msg := range expected {
		if status.Message() != msg {
			t.Fatalf("status %d expected %q got %q", status, msg, status.Message())
		}
	}
	if StatusIngestNotFound != 11 || StatusInvalidCPL != 15 {
		t.Fatalf("unexpected status numbering")
	}
}

func TestReplyFlattensBody(t *testing.T) {
	payload, err := json.Marshal(OK(PlaylistUUIDsReply{PlaylistUUIDs: []string{"a"}}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["status"].(float64) != 0 {
		t.Fatalf("expected status 0, got %v", got["status"])
	}
	if _, ok := got["err_msg"]; ok {
		t.Fatalf("expected no err_msg on success")
	}
	ids, ok := got["playlist_uuids"].([]any)
	if !ok || len(ids) != 1 || ids[0] != "a" {
		t.Fatalf("expected flattened playlist_uuids, got %v", got)
	}
}

func TestReplyFailureCarriesMessageAndTrace(t *testing.T) {
	payload, err := json.Marshal(Fail(StatusInvalidPlaylist).WithTrace("events: required"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	reply, err := DecodeReply(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Status != StatusInvalidPlaylist {
		t.Fatalf("expected status 8, got %d", reply.Status)
	}
	if reply.ErrMsg != "Invalid playlist supplied" {
		t.Fatalf("unexpected err_msg %q", reply.ErrMsg)
	}
	if reply.Trace != "events: required" {
		t.Fatalf("unexpected trace %q", reply.Trace)
	}
}

func TestReplyDecodeBody(t *testing.T) {
	payload, err := json.Marshal(OK(IngestReply{IngestUUID: "job", Duplicate: true}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	reply, err := DecodeReply(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var body IngestReply
	if err := reply.Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.IngestUUID != "job" || !body.Duplicate {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestReplyRejectsNonObjectBody(t *testing.T) {
	if _, err := json.Marshal(OK([]string{"a"})); err == nil {
		t.Fatalf("expected error for array body")
	}
}

func TestDecodeArgsEmptyPayload(t *testing.T) {
	var args CPLUUIDArgs
	if err := DecodeArgs(nil, &args); err != nil {
		t.Fatalf("expected empty payload to decode, got %v", err)
	}
	if err := DecodeArgs([]byte("  "), &args); err != nil {
		t.Fatalf("expected blank payload to decode, got %v", err)
	}
	if err := DecodeArgs([]byte(`{"cpl_uuid":"x"}`), &args); err != nil || args.CPLUUID != "x" {
		t.Fatalf("expected cpl_uuid x, got %+v %v", args, err)
	}
}

func TestTopics(t *testing.T) {
	if TopicIngestProgress(BaseTopic, "id") != "screener/v1/ingest/id/progress" {
		t.Fatalf("unexpected progress topic")
	}
	if TopicPlaybackState("base") != "base/playback/state" {
		t.Fatalf("unexpected playback topic")
	}
}
