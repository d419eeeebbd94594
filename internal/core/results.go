package core

import "github.com/mikey-austin/screener/pkg/screener"

// StatusResult holds the player status.
type StatusResult struct {
	Status screener.StatusReply
}

// TimeResult holds the daemon clock.
type TimeResult struct {
	Time int64
}

// IDsResult holds an id listing of one kind.
type IDsResult struct {
	Kind string
	IDs  []string
}

// TitlesResult holds ingested compositions.
type TitlesResult struct {
	Titles []screener.CPL
}

// IngestResult reports a queued ingest.
type IngestResult struct {
	Reply screener.IngestReply
}

// IngestsResult holds ingest jobs.
type IngestsResult struct {
	Ingests []screener.IngestInfo
}

// CancelResult reports a cancel request.
type CancelResult struct {
	IngestUUID string
	Cancelled  bool
}

// PlaylistsResult holds playlist documents.
type PlaylistsResult struct {
	Playlists []screener.Playlist
}

// SchedulesResult holds schedule entries.
type SchedulesResult struct {
	Schedules []screener.ScheduleEntry
}

// CreatedResult reports the id of a new playlist or schedule entry.
type CreatedResult struct {
	Kind string
	ID   string
}

// ModeResult holds the schedule mode.
type ModeResult struct {
	Mode string
}

// EventResult is one decoded notification.
type EventResult struct {
	Topic    string                        `json:"topic"`
	Progress *screener.IngestProgressEvent `json:"progress,omitempty"`
	Ingest   *screener.IngestStateEvent    `json:"ingest,omitempty"`
	Playback *screener.PlaybackStateEvent  `json:"playback,omitempty"`
	Raw      []byte                        `json:"-"`
}

// RawResult holds arbitrary JSON data for output.
type RawResult struct {
	Data any
}
