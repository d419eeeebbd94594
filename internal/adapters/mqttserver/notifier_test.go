package mqttserver

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/modules/broker"
	"github.com/mikey-austin/screener/pkg/screener"
)

type message struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type recorder struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (r *recorder) Publish(topic string, qos byte, retained bool, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message{topic: topic, qos: qos, retained: retained, payload: payload})
	return r.err
}

func TestNotifierTopics(t *testing.T) {
	rec := &recorder{}
	n := NewNotifier(zap.NewNop(), rec, "")

	n.IngestProgress(screener.IngestProgressEvent{IngestUUID: "job-1", Progress: 40})
	n.IngestState(screener.IngestStateEvent{IngestUUID: "job-1", State: screener.IngestDone, CPLUUIDs: []string{"c1"}})
	n.PlaybackState(screener.PlaybackStateEvent{StatusReply: screener.StatusReply{State: screener.StatePlay, StateName: "PLAY"}, TS: 10})

	if len(rec.msgs) != 3 {
		t.Fatalf("expected three messages, got %d", len(rec.msgs))
	}
	if rec.msgs[0].topic != "screener/v1/ingest/job-1/progress" || rec.msgs[0].retained {
		t.Fatalf("unexpected progress message %+v", rec.msgs[0])
	}
	if rec.msgs[1].topic != "screener/v1/ingest/job-1/state" || !rec.msgs[1].retained {
		t.Fatalf("unexpected state message %+v", rec.msgs[1])
	}
	if rec.msgs[2].topic != "screener/v1/playback/state" {
		t.Fatalf("unexpected playback topic %q", rec.msgs[2].topic)
	}

	var state screener.IngestStateEvent
	if err := json.Unmarshal(rec.msgs[1].payload, &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.State != screener.IngestDone || len(state.CPLUUIDs) != 1 {
		t.Fatalf("unexpected payload %+v", state)
	}
	var playback map[string]any
	if err := json.Unmarshal(rec.msgs[2].payload, &playback); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if playback["state_name"] != "PLAY" || playback["ts"] != float64(10) {
		t.Fatalf("expected flattened status, got %v", playback)
	}
}

func TestNotifierSwallowsPublishErrors(t *testing.T) {
	rec := &recorder{err: errors.New("not connected")}
	n := NewNotifier(zap.NewNop(), rec, "custom")
	n.IngestState(screener.IngestStateEvent{IngestUUID: "job-1", State: screener.IngestFailed})
	if rec.msgs[0].topic != "custom/ingest/job-1/state" {
		t.Fatalf("unexpected topic %q", rec.msgs[0].topic)
	}
}

func TestNotifierThroughEmbeddedBroker(t *testing.T) {
	b, err := broker.New(zap.NewNop(), broker.Config{AllowAnonymous: true})
	if err != nil {
		t.Fatalf("broker: %v", err)
	}
	received := make(chan string, 4)
	if err := b.Subscribe(screener.TopicAll(screener.BaseTopic), 1, func(topic string, _ []byte) {
		received <- topic
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	NewNotifier(zap.NewNop(), b, "").PlaybackState(screener.PlaybackStateEvent{})
	select {
	case topic := <-received:
		if topic != screener.TopicPlaybackState(screener.BaseTopic) {
			t.Fatalf("unexpected topic %q", topic)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for notification")
	}
}
