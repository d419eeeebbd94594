package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"github.com/mikey-austin/screener/internal/core"
	"github.com/mikey-austin/screener/pkg/screener"
)

// HumanPrinter prints human-readable output, to stdout unless Out is set.
type HumanPrinter struct {
	Out io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	w := p.Out
	if w == nil {
		w = os.Stdout
	}
	switch data := v.(type) {
	case core.StatusResult:
		return printStatus(w, data)
	case core.TimeResult:
		return printTime(w, data)
	case core.IDsResult:
		return printIDs(w, data)
	case core.TitlesResult:
		return printTitles(w, data)
	case core.IngestResult:
		return printIngest(w, data)
	case core.IngestsResult:
		return printIngests(w, data)
	case core.CancelResult:
		return printCancel(w, data)
	case core.PlaylistsResult:
		return printPlaylists(w, data)
	case core.SchedulesResult:
		return printSchedules(w, data)
	case core.CreatedResult:
		_, err := fmt.Fprintf(w, "%s %s\n", data.Kind, data.ID)
		return err
	case core.ModeResult:
		_, err := fmt.Fprintln(w, data.Mode)
		return err
	case core.EventResult:
		return printEvent(w, data)
	case core.RawResult:
		return printRaw(w, data)
	default:
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
}

func renderTable(w io.Writer, rows [][]string) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

func stateStyle(name string) string {
	switch name {
	case "PLAY":
		return pterm.FgGreen.Sprint(name)
	case "PAUSE":
		return pterm.FgYellow.Sprint(name)
	case "STOP":
		return pterm.FgRed.Sprint(name)
	default:
		return pterm.FgGray.Sprint(name)
	}
}

func ingestStateStyle(state string) string {
	switch state {
	case screener.IngestDone:
		return pterm.FgGreen.Sprint(state)
	case screener.IngestRunning:
		return pterm.FgCyan.Sprint(state)
	case screener.IngestFailed:
		return pterm.FgRed.Sprint(state)
	default:
		return state
	}
}

func printStatus(w io.Writer, result core.StatusResult) error {
	st := result.Status
	parts := []string{stateStyle(st.StateName)}
	if st.PlaylistUUID != "" {
		parts = append(parts, "playlist "+st.PlaylistUUID)
	}
	if st.CPLUUID != "" {
		parts = append(parts, "cpl "+st.CPLUUID)
	}
	if st.Title != "" {
		parts = append(parts, fmt.Sprintf("%q", st.Title))
	}
	if st.EventIndex != nil {
		parts = append(parts, fmt.Sprintf("event %d (%s)", *st.EventIndex, st.EventID))
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, "  "))
	return err
}

func printTime(w io.Writer, result core.TimeResult) error {
	_, err := fmt.Fprintf(w, "%s (%d)\n", time.Unix(result.Time, 0).UTC().Format(time.RFC3339), result.Time)
	return err
}

func printIDs(w io.Writer, result core.IDsResult) error {
	if len(result.IDs) == 0 {
		_, err := fmt.Fprintf(w, "no %ss\n", result.Kind)
		return err
	}
	for _, id := range result.IDs {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}

func printTitles(w io.Writer, result core.TitlesResult) error {
	if len(result.Titles) == 0 {
		_, err := fmt.Fprintln(w, "no titles")
		return err
	}
	rows := [][]string{{"CPL_UUID", "TITLE", "KIND", "DURATION", "REELS", "INGESTED"}}
	for _, cpl := range result.Titles {
		ingested := ""
		if cpl.IngestedAt > 0 {
			ingested = humanize.Time(time.Unix(cpl.IngestedAt, 0))
		}
		rows = append(rows, []string{
			cpl.UUID,
			cpl.ContentTitleText,
			cpl.ContentKind,
			formatSeconds(cpl.DurationInSeconds),
			fmt.Sprintf("%d", len(cpl.Reels)),
			ingested,
		})
	}
	return renderTable(w, rows)
}

func printIngest(w io.Writer, result core.IngestResult) error {
	if result.Reply.Duplicate {
		_, err := fmt.Fprintf(w, "already ingesting %s\n", result.Reply.IngestUUID)
		return err
	}
	_, err := fmt.Fprintf(w, "queued %s\n", result.Reply.IngestUUID)
	return err
}

func printIngests(w io.Writer, result core.IngestsResult) error {
	if len(result.Ingests) == 0 {
		_, err := fmt.Fprintln(w, "no ingests")
		return err
	}
	rows := [][]string{{"INGEST_UUID", "STATE", "PROGRESS", "DCP_PATH", "CPLS", "ERROR"}}
	for _, info := range result.Ingests {
		rows = append(rows, []string{
			info.IngestUUID,
			ingestStateStyle(info.State),
			fmt.Sprintf("%d%%", info.Progress),
			info.DCPPath,
			strings.Join(info.CPLUUIDs, ","),
			info.Error,
		})
	}
	return renderTable(w, rows)
}

func printCancel(w io.Writer, result core.CancelResult) error {
	if result.Cancelled {
		_, err := fmt.Fprintf(w, "cancelled %s\n", result.IngestUUID)
		return err
	}
	_, err := fmt.Fprintf(w, "%s is already running or finished\n", result.IngestUUID)
	return err
}

func printPlaylists(w io.Writer, result core.PlaylistsResult) error {
	if len(result.Playlists) == 0 {
		_, err := fmt.Fprintln(w, "no playlists")
		return err
	}
	rows := [][]string{{"PLAYLIST_UUID", "TITLE", "EVENTS", "DURATION"}}
	for _, pl := range result.Playlists {
		rows = append(rows, []string{pl.UUID, pl.Title, fmt.Sprintf("%d", len(pl.Events)), formatSeconds(pl.Duration)})
	}
	if err := renderTable(w, rows); err != nil {
		return err
	}
	if len(result.Playlists) != 1 {
		return nil
	}
	events := [][]string{{"INDEX", "EVENT_ID", "TYPE", "CPL_ID", "DURATION"}}
	for idx, evt := range result.Playlists[0].Events {
		events = append(events, []string{fmt.Sprintf("%d", idx), evt.ID, evt.Type, evt.CPLID, formatSeconds(evt.DurationInSeconds)})
	}
	return renderTable(w, events)
}

func printSchedules(w io.Writer, result core.SchedulesResult) error {
	if len(result.Schedules) == 0 {
		_, err := fmt.Fprintln(w, "no schedules")
		return err
	}
	rows := [][]string{{"SCHEDULE_UUID", "START", "KIND", "TARGET"}}
	for _, entry := range result.Schedules {
		kind, target := "cpl", entry.CPLUUID
		if entry.PlaylistUUID != "" {
			kind, target = "playlist", entry.PlaylistUUID
		}
		rows = append(rows, []string{
			entry.ScheduleUUID,
			time.Unix(entry.StartTime, 0).UTC().Format(time.RFC3339),
			kind,
			target,
		})
	}
	return renderTable(w, rows)
}

func printEvent(w io.Writer, evt core.EventResult) error {
	var line string
	switch {
	case evt.Progress != nil:
		p := evt.Progress
		line = fmt.Sprintf("ingest %s %3d%% %s / %s", p.IngestUUID, p.Progress, humanize.Bytes(uint64(max(p.Downloaded, 0))), humanize.Bytes(uint64(max(p.Total, 0))))
	case evt.Ingest != nil:
		s := evt.Ingest
		line = strings.TrimSpace(fmt.Sprintf("ingest %s %s %s", s.IngestUUID, s.State, s.DCPPath))
		if s.Error != "" {
			line += ": " + s.Error
		}
	case evt.Playback != nil:
		var buf strings.Builder
		if err := printStatus(&buf, core.StatusResult{Status: evt.Playback.StatusReply}); err != nil {
			return err
		}
		line = "playback " + strings.TrimSpace(buf.String())
	default:
		line = fmt.Sprintf("%s %s", evt.Topic, string(evt.Raw))
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func printRaw(w io.Writer, result core.RawResult) error {
	raw, err := rawBytes(result.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

func rawBytes(data any) ([]byte, error) {
	switch val := data.(type) {
	case json.RawMessage:
		return val, nil
	case []byte:
		return val, nil
	default:
		return json.Marshal(val)
	}
}

func formatSeconds(secs int64) string {
	if secs <= 0 {
		return "0:00"
	}
	h, m, s := secs/3600, (secs/60)%60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
