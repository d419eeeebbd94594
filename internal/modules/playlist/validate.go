package playlist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mikey-austin/screener/pkg/screener"
)

// ValidationError lists every problem found in a playlist document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid playlist: " + strings.Join(e.Problems, "; ")
}

// Trace returns the problems one per line.
func (e *ValidationError) Trace() string {
	return strings.Join(e.Problems, "\n")
}

func invalid(format string, args ...any) *ValidationError {
	return &ValidationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// Parse decodes and validates a playlist document. The contents may be a
// JSON object or a JSON string holding one. Events without an id are given
// one.
func Parse(contents json.RawMessage) (screener.Playlist, error) {
	raw := bytes.TrimSpace(contents)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return screener.Playlist{}, invalid("playlist_contents: required")
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return screener.Playlist{}, invalid("playlist_contents: %v", err)
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 {
			return screener.Playlist{}, invalid("playlist_contents: empty document")
		}
	}
	if raw[0] != '{' {
		return screener.Playlist{}, invalid("playlist_contents: expected an object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return screener.Playlist{}, invalid("playlist_contents: %v", err)
	}
	var doc screener.Playlist
	if err := json.Unmarshal(raw, &doc); err != nil {
		return screener.Playlist{}, invalid("playlist_contents: %v", err)
	}

	var problems []string
	if strings.TrimSpace(doc.Title) == "" {
		problems = append(problems, "title: required")
	}
	if _, ok := fields["duration"]; !ok {
		problems = append(problems, "duration: required")
	} else if doc.Duration < 0 {
		problems = append(problems, "duration: must not be negative")
	}
	if _, ok := fields["events"]; !ok || doc.Events == nil {
		problems = append(problems, "events: required")
	}

	seen := map[string]bool{}
	for i := range doc.Events {
		event := &doc.Events[i]
		prefix := fmt.Sprintf("events[%d]", i)
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if seen[event.ID] {
			problems = append(problems, prefix+".id: duplicate "+event.ID)
		}
		seen[event.ID] = true

		switch event.Type {
		case screener.EventComposition:
			problems = append(problems, validateComposition(prefix, *event)...)
		case screener.EventPause, screener.EventMacro:
			if event.DurationInSeconds < 0 || event.DurationInFrames < 0 {
				problems = append(problems, prefix+": duration must not be negative")
			}
		case "":
			problems = append(problems, prefix+".type: required")
		default:
			problems = append(problems, fmt.Sprintf("%s.type: unknown %q", prefix, event.Type))
		}
	}
	if len(problems) > 0 {
		return screener.Playlist{}, &ValidationError{Problems: problems}
	}
	return doc, nil
}

func validateComposition(prefix string, event screener.PlaylistEvent) []string {
	var problems []string
	if _, err := uuid.Parse(event.CPLID); err != nil {
		problems = append(problems, fmt.Sprintf("%s.cpl_id: %q is not a uuid", prefix, event.CPLID))
	}
	if strings.TrimSpace(event.Text) == "" {
		problems = append(problems, prefix+".text: required")
	}
	if event.DurationInFrames <= 0 {
		problems = append(problems, prefix+".duration_in_frames: must be positive")
	}
	if event.DurationInSeconds < 0 {
		problems = append(problems, prefix+".duration_in_seconds: must not be negative")
	}
	if len(event.EditRate) != 2 || event.EditRate[0] <= 0 || event.EditRate[1] <= 0 {
		problems = append(problems, prefix+".edit_rate: expected [numerator, denominator]")
	}
	return problems
}

// CPLIDs returns the composition ids the playlist references in order.
func CPLIDs(pl screener.Playlist) []string {
	var ids []string
	for _, event := range pl.Events {
		if event.Type == screener.EventComposition {
			ids = append(ids, event.CPLID)
		}
	}
	return ids
}
