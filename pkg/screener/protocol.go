// Package screener defines the screener wire protocol: the universal label
// key carried by every message, the command codes, the response status table
// and the JSON bodies exchanged by the server and its clients.
package screener

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/mikey-austin/screener/pkg/klv"
)

// DefaultPort is the TCP port screenerd listens on unless configured.
const DefaultPort = 9500

// BaseTopic is the default MQTT topic prefix for notifications.
const BaseTopic = "screener/v1"

// CommandIndex is the key byte holding the command code.
const CommandIndex = 15

// Signature is the fixed prefix of every key (SMPTE ST 336 universal label).
var Signature = [7]byte{0x06, 0x0e, 0x2b, 0x34, 0x02, 0x04, 0x01}

// ErrBadKey reports a key of the wrong size.
var ErrBadKey = errors.New("screener: bad key")

// Command is a one byte command code.
type Command byte

const (
	CmdPlay           Command = 0x00
	CmdStop           Command = 0x01
	CmdStatus         Command = 0x02
	CmdSystemTime     Command = 0x03
	CmdLoadCPL        Command = 0x04
	CmdPause          Command = 0x05
	CmdLoadPlaylist   Command = 0x06
	CmdEject          Command = 0x07
	CmdSkipForward    Command = 0x08
	CmdSkipBackward   Command = 0x09
	CmdSkipToPosition Command = 0x0A
	CmdSkipToEvent    Command = 0x0B

	CmdIngest             Command = 0x10
	CmdCancelIngest       Command = 0x11
	CmdClearIngestHistory Command = 0x12

	CmdInsertPlaylist   Command = 0x16
	CmdUpdatePlaylist   Command = 0x17
	CmdDeletePlaylist   Command = 0x18
	CmdScheduleCPL      Command = 0x19
	CmdSchedulePlaylist Command = 0x1A
	CmdDeleteSchedule   Command = 0x1B
	CmdSetMode          Command = 0x1C

	CmdGetCPLUUIDs      Command = 0x20
	CmdGetCPLs          Command = 0x21
	CmdGetCPL           Command = 0x22
	CmdGetIngestHistory Command = 0x23
	CmdGetIngestsInfo   Command = 0x24
	CmdGetIngestInfo    Command = 0x25
	CmdGetPlaylistUUIDs Command = 0x26
	CmdGetPlaylists     Command = 0x27
	CmdGetPlaylist      Command = 0x28
	CmdGetScheduleUUIDs Command = 0x29
	CmdGetSchedules     Command = 0x2A
	CmdGetSchedule      Command = 0x2B
	CmdGetMode          Command = 0x2C
)

var commandNames = map[Command]string{
	CmdPlay:               "play",
	CmdStop:               "stop",
	CmdStatus:             "status",
	CmdSystemTime:         "system_time",
	CmdLoadCPL:            "load_cpl",
	CmdPause:              "pause",
	CmdLoadPlaylist:       "load_playlist",
	CmdEject:              "eject",
	CmdSkipForward:        "skip_forward",
	CmdSkipBackward:       "skip_backward",
	CmdSkipToPosition:     "skip_to_position",
	CmdSkipToEvent:        "skip_to_event",
	CmdIngest:             "ingest",
	CmdCancelIngest:       "cancel_ingest",
	CmdClearIngestHistory: "clear_ingest_history",
	CmdInsertPlaylist:     "insert_playlist",
	CmdUpdatePlaylist:     "update_playlist",
	CmdDeletePlaylist:     "delete_playlist",
	CmdScheduleCPL:        "schedule_cpl",
	CmdSchedulePlaylist:   "schedule_playlist",
	CmdDeleteSchedule:     "delete_schedule",
	CmdSetMode:            "set_mode",
	CmdGetCPLUUIDs:        "get_cpl_uuids",
	CmdGetCPLs:            "get_cpls",
	CmdGetCPL:             "get_cpl",
	CmdGetIngestHistory:   "get_ingest_history",
	CmdGetIngestsInfo:     "get_ingests_info",
	CmdGetIngestInfo:      "get_ingest_info",
	CmdGetPlaylistUUIDs:   "get_playlist_uuids",
	CmdGetPlaylists:       "get_playlists",
	CmdGetPlaylist:        "get_playlist",
	CmdGetScheduleUUIDs:   "get_schedule_uuids",
	CmdGetSchedules:       "get_schedules",
	CmdGetSchedule:        "get_schedule",
	CmdGetMode:            "get_mode",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(c))
}

// Commands returns every known command ordered by code.
func Commands() []Command {
	out := make([]Command, 0, len(commandNames))
	for cmd := range commandNames {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Key builds the universal label key for cmd.
func Key(cmd Command) []byte {
	key := make([]byte, klv.KeyLength)
	copy(key, Signature[:])
	key[CommandIndex] = byte(cmd)
	return key
}

// CommandFromKey extracts the command code from a key. The signature is not
// enforced; older clients send an all-zero prefix.
func CommandFromKey(key []byte) (Command, error) {
	if len(key) != klv.KeyLength {
		return 0, fmt.Errorf("%w: %d bytes", ErrBadKey, len(key))
	}
	return Command(key[CommandIndex]), nil
}

// HasSignature reports whether key starts with the protocol signature.
func HasSignature(key []byte) bool {
	return len(key) >= len(Signature) && bytes.Equal(key[:len(Signature)], Signature[:])
}

// Status is a response status code. Zero is success; every other code has a
// fixed message.
type Status int

const (
	StatusSuccess Status = iota
	StatusCPLNotFound
	StatusPlaylistNotFound
	StatusNothingLoaded
	StatusCPLLoaded
	StatusNoPlaylistLoaded
	StatusPositionNotFound
	StatusEventNotFound
	StatusInvalidPlaylist
	StatusInvalidMode
	StatusScheduleNotFound
	StatusIngestNotFound
	StatusNotImplemented
	StatusIngestFailed
	StatusInvalidArguments
	StatusInvalidCPL
	StatusInternalError
)

var statusMessages = map[Status]string{
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
	StatusNotImplemented:   "Not implemented",
	StatusIngestFailed:     "Ingest failed",
	StatusInvalidArguments: "Invalid arguments",
	StatusInvalidCPL:       "Invalid CPL supplied",
	StatusInternalError:    "Internal error",
}

// Message returns the fixed text for s, empty for success.
func (s Status) Message() string {
	return statusMessages[s]
}

// Reply is a response: a status, the status message for failures, an
// optional diagnostic trace and command specific fields. On the wire the body
// fields are flattened into the same JSON object as the status.
type Reply struct {
	Status Status
	ErrMsg string
	Trace  string
	Body   any
}

// OK builds a success reply carrying body.
func OK(body any) Reply {
	return Reply{Status: StatusSuccess, Body: body}
}

// Fail builds a failure reply with the fixed message for status.
func Fail(status Status) Reply {
	return Reply{Status: status, ErrMsg: status.Message()}
}

// WithTrace attaches a diagnostic trace.
func (r Reply) WithTrace(trace string) Reply {
	r.Trace = trace
	return r
}

// WithBody attaches command fields to a reply.
func (r Reply) WithBody(body any) Reply {
	r.Body = body
	return r
}

// MarshalJSON flattens the body into the status object.
func (r Reply) MarshalJSON() ([]byte, error) {
	fields := map[string]any{}
	switch body := r.Body.(type) {
	case nil:
	case json.RawMessage:
		if len(body) == 0 {
			break
		}
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("reply body must be an object: %w", err)
		}
	default:
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("reply body must be an object: %w", err)
		}
	}
	fields["status"] = r.Status
	if r.Status != StatusSuccess {
		msg := r.ErrMsg
		if msg == "" {
			msg = r.Status.Message()
		}
		fields["err_msg"] = msg
	}
	if r.Trace != "" {
		fields["trace"] = r.Trace
	}
	return json.Marshal(fields)
}

// DecodeReply parses a reply payload. The body keeps the whole raw payload
// so callers can decode their command fields with Reply.Decode.
func DecodeReply(payload []byte) (Reply, error) {
	var header struct {
		Status Status `json:"status"`
		ErrMsg string `json:"err_msg"`
		Trace  string `json:"trace"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return Reply{
		Status: header.Status,
		ErrMsg: header.ErrMsg,
		Trace:  header.Trace,
		Body:   json.RawMessage(payload),
	}, nil
}

// Decode unmarshals the reply body into v.
func (r Reply) Decode(v any) error {
	raw, ok := r.Body.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(r.Body)
		if err != nil {
			return err
		}
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// DecodeArgs unmarshals command arguments into v. An empty payload is an
// empty object.
func DecodeArgs(payload []byte, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}

// EncodeArgs marshals command arguments. Nil args produce an empty payload.
func EncodeArgs(args any) ([]byte, error) {
	if args == nil {
		return nil, nil
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}
	return payload, nil
}

// TopicIngestProgress builds the progress topic for an ingest job.
func TopicIngestProgress(topicBase, ingestID string) string {
	return fmt.Sprintf("%s/ingest/%s/progress", topicBase, ingestID)
}

// TopicIngestState builds the state topic for an ingest job.
func TopicIngestState(topicBase, ingestID string) string {
	return fmt.Sprintf("%s/ingest/%s/state", topicBase, ingestID)
}

// TopicPlaybackState builds the retained playback state topic.
func TopicPlaybackState(topicBase string) string {
	return fmt.Sprintf("%s/playback/state", topicBase)
}

// TopicAll matches every notification under topicBase.
func TopicAll(topicBase string) string {
	return topicBase + "/#"
}
