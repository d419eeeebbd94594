package screener

import "encoding/json"

// ConnectionDetails describes the FTP endpoint an ingest pulls from.
type ConnectionDetails struct {
	Host   string `json:"host"`
	Port   int    `json:"port,omitempty"`
	User   string `json:"user,omitempty"`
	Passwd string `json:"passwd,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

// IngestArgs is the payload for ingest.
type IngestArgs struct {
	DCPPath           string             `json:"dcp_path"`
	ConnectionDetails *ConnectionDetails `json:"connection_details,omitempty"`
}

// IngestReply is returned by ingest.
type IngestReply struct {
	IngestUUID string `json:"ingest_uuid"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}

// IngestUUIDArgs addresses a single ingest job.
type IngestUUIDArgs struct {
	IngestUUID string `json:"ingest_uuid"`
}

// IngestUUIDsArgs addresses several ingest jobs.
type IngestUUIDsArgs struct {
	IngestUUIDs []string `json:"ingest_uuids"`
}

// Ingest job states.
const (
	IngestQueued    = "QUEUED"
	IngestRunning   = "RUNNING"
	IngestDone      = "DONE"
	IngestCancelled = "CANCELLED"
	IngestFailed    = "FAILED"
)

// HistoryEntry is one state transition of an ingest job.
type HistoryEntry struct {
	State     string `json:"state"`
	Timestamp int64  `json:"timestamp"`
}

// IngestInfo describes an ingest job and its history.
type IngestInfo struct {
	IngestUUID string         `json:"ingest_uuid"`
	DCPPath    string         `json:"dcp_path"`
	State      string         `json:"state"`
	Progress   int            `json:"progress"`
	History    []HistoryEntry `json:"history"`
	CPLUUIDs   []string       `json:"cpl_uuids,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// IngestInfoReply is returned by get_ingest_info.
type IngestInfoReply struct {
	Ingest IngestInfo `json:"ingest"`
}

// IngestsInfoReply is returned by get_ingests_info.
type IngestsInfoReply struct {
	Ingests []IngestInfo `json:"ingests"`
}

// IngestHistoryReply is returned by get_ingest_history.
type IngestHistoryReply struct {
	History []IngestInfo `json:"history"`
}

// CancelIngestReply is returned by cancel_ingest.
type CancelIngestReply struct {
	Cancelled bool `json:"cancelled"`
}

// CPLUUIDArgs addresses a single composition.
type CPLUUIDArgs struct {
	CPLUUID string `json:"cpl_uuid"`
}

// CPLUUIDsArgs addresses several compositions.
type CPLUUIDsArgs struct {
	CPLUUIDs []string `json:"cpl_uuids"`
}

// AssetRef is a track file referenced from a reel.
type AssetRef struct {
	UUID              string `json:"uuid"`
	Kind              string `json:"kind"`
	EditRate          []int  `json:"edit_rate,omitempty"`
	IntrinsicDuration int64  `json:"intrinsic_duration"`
	EntryPoint        int64  `json:"entry_point"`
	Duration          int64  `json:"duration"`
}

// Reel is an ordered segment of a composition.
type Reel struct {
	UUID   string     `json:"uuid"`
	Assets []AssetRef `json:"assets"`
}

// CPL describes an ingested composition.
type CPL struct {
	UUID              string `json:"uuid"`
	ContentTitleText  string `json:"content_title_text"`
	Issuer            string `json:"issuer,omitempty"`
	ContentKind       string `json:"content_kind,omitempty"`
	ContentVersion    string `json:"content_version,omitempty"`
	EditRate          []int  `json:"edit_rate,omitempty"`
	DurationInFrames  int64  `json:"duration_in_frames"`
	DurationInSeconds int64  `json:"duration_in_seconds"`
	Reels             []Reel `json:"reels"`
	IngestedAt        int64  `json:"ingested_at,omitempty"`
}

// CPLUUIDsReply is returned by get_cpl_uuids.
type CPLUUIDsReply struct {
	CPLUUIDs []string `json:"cpl_uuids"`
}

// CPLsReply is returned by get_cpls.
type CPLsReply struct {
	CPLs []CPL `json:"cpls"`
}

// CPLReply is returned by get_cpl.
type CPLReply struct {
	CPL CPL `json:"cpl"`
}

// Playlist event types.
const (
	EventComposition = "composition"
	EventPause       = "pause"
	EventMacro       = "macro"
)

// PlaylistEvent is one entry of a show playlist.
type PlaylistEvent struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	CPLID             string `json:"cpl_id,omitempty"`
	Text              string `json:"text,omitempty"`
	DurationInFrames  int64  `json:"duration_in_frames"`
	DurationInSeconds int64  `json:"duration_in_seconds"`
	EditRate          []int  `json:"edit_rate,omitempty"`
}

// Playlist is a show playlist document.
type Playlist struct {
	UUID     string          `json:"uuid,omitempty"`
	Title    string          `json:"title"`
	Duration int64           `json:"duration"`
	Events   []PlaylistEvent `json:"events"`
}

// PlaylistUUIDArgs addresses a single playlist.
type PlaylistUUIDArgs struct {
	PlaylistUUID string `json:"playlist_uuid"`
}

// PlaylistUUIDsArgs addresses several playlists.
type PlaylistUUIDsArgs struct {
	PlaylistUUIDs []string `json:"playlist_uuids"`
}

// PlaylistContentsArgs carries a playlist document for insert and update.
// The contents may be a JSON object or a string holding one.
type PlaylistContentsArgs struct {
	PlaylistUUID     string          `json:"playlist_uuid,omitempty"`
	PlaylistContents json.RawMessage `json:"playlist_contents"`
}

// InsertPlaylistReply is returned by insert_playlist.
type InsertPlaylistReply struct {
	PlaylistUUID string `json:"playlist_uuid"`
}

// PlaylistUUIDsReply is returned by get_playlist_uuids.
type PlaylistUUIDsReply struct {
	PlaylistUUIDs []string `json:"playlist_uuids"`
}

// PlaylistsReply is returned by get_playlists.
type PlaylistsReply struct {
	Playlists []Playlist `json:"playlists"`
}

// PlaylistReply is returned by get_playlist.
type PlaylistReply struct {
	Playlist Playlist `json:"playlist"`
}

// Schedule modes.
const (
	ModeSchedule = "SCHEDULE"
	ModeManual   = "MANUAL"
)

// ScheduleEntry is a scheduled showing of a composition or a playlist.
type ScheduleEntry struct {
	ScheduleUUID string `json:"schedule_uuid"`
	StartTime    int64  `json:"start_time"`
	CPLUUID      string `json:"cpl_uuid,omitempty"`
	PlaylistUUID string `json:"playlist_uuid,omitempty"`
}

// ScheduleCPLArgs is the payload for schedule_cpl.
type ScheduleCPLArgs struct {
	CPLUUID   string `json:"cpl_uuid"`
	StartTime int64  `json:"start_time"`
}

// SchedulePlaylistArgs is the payload for schedule_playlist.
type SchedulePlaylistArgs struct {
	PlaylistUUID string `json:"playlist_uuid"`
	StartTime    int64  `json:"start_time"`
}

// ScheduleUUIDArgs addresses a single schedule entry.
type ScheduleUUIDArgs struct {
	ScheduleUUID string `json:"schedule_uuid"`
}

// ScheduleUUIDsArgs addresses several schedule entries.
type ScheduleUUIDsArgs struct {
	ScheduleUUIDs []string `json:"schedule_uuids"`
}

// ScheduleCreatedReply is returned by schedule_cpl and schedule_playlist.
type ScheduleCreatedReply struct {
	ScheduleUUID string `json:"schedule_uuid"`
}

// ScheduleUUIDsReply is returned by get_schedule_uuids.
type ScheduleUUIDsReply struct {
	ScheduleUUIDs []string `json:"schedule_uuids"`
}

// SchedulesReply is returned by get_schedules.
type SchedulesReply struct {
	Schedules []ScheduleEntry `json:"schedules"`
}

// ScheduleReply is returned by get_schedule.
type ScheduleReply struct {
	Schedule ScheduleEntry `json:"schedule"`
}

// ModeArgs is the payload for set_mode.
type ModeArgs struct {
	Mode string `json:"mode"`
}

// ModeReply is returned by get_mode.
type ModeReply struct {
	Mode string `json:"mode"`
}

// LoadCPLArgs is the payload for load_cpl.
type LoadCPLArgs = CPLUUIDArgs

// LoadPlaylistArgs is the payload for load_playlist.
type LoadPlaylistArgs = PlaylistUUIDArgs

// SkipToPositionArgs is the payload for skip_to_position.
type SkipToPositionArgs struct {
	Position int64 `json:"position"`
}

// SkipToEventArgs is the payload for skip_to_event.
type SkipToEventArgs struct {
	EventID string `json:"event_id"`
}

// Playback states.
const (
	StateEject = 0
	StateStop  = 1
	StatePlay  = 2
	StatePause = 3
)

// StatusReply is returned by status.
type StatusReply struct {
	State        int    `json:"state"`
	StateName    string `json:"state_name"`
	CPLUUID      string `json:"cpl_uuid,omitempty"`
	PlaylistUUID string `json:"playlist_uuid,omitempty"`
	Title        string `json:"title,omitempty"`
	EventIndex   *int   `json:"event_index,omitempty"`
	EventID      string `json:"event_id,omitempty"`
}

// SystemTimeReply is returned by system_time.
type SystemTimeReply struct {
	Time int64 `json:"time"`
}

// IngestProgressEvent is published at each whole percent of a download.
type IngestProgressEvent struct {
	IngestUUID string `json:"ingest_uuid"`
	DCPPath    string `json:"dcp_path"`
	Progress   int    `json:"progress"`
	Downloaded int64  `json:"downloaded"`
	Total      int64  `json:"total"`
	TS         int64  `json:"ts"`
}

// IngestStateEvent is published when an ingest job changes state.
type IngestStateEvent struct {
	IngestUUID string   `json:"ingest_uuid"`
	DCPPath    string   `json:"dcp_path"`
	State      string   `json:"state"`
	CPLUUIDs   []string `json:"cpl_uuids,omitempty"`
	Error      string   `json:"error,omitempty"`
	TS         int64    `json:"ts"`
}

// PlaybackStateEvent is published when the playback state changes.
type PlaybackStateEvent struct {
	StatusReply
	TS int64 `json:"ts"`
}
