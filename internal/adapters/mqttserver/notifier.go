package mqttserver

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/modules/content"
	"github.com/mikey-austin/screener/internal/modules/playback"
	"github.com/mikey-austin/screener/pkg/screener"
)

var (
	errPublishTimeout = errors.New("mqtt publish timed out")
	errNotConnected   = errors.New("mqtt not connected")
)

// Publisher sends a message to a broker. Both the external client and the
// embedded broker satisfy it.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Notifier turns ingest and playback events into MQTT messages. Progress is
// fire and forget; state changes are retained so late subscribers see the
// latest value.
type Notifier struct {
	pub       Publisher
	topicBase string
	log       *zap.Logger
}

var (
	_ content.Notifier  = (*Notifier)(nil)
	_ playback.Notifier = (*Notifier)(nil)
)

// NewNotifier publishes under topicBase, screener.BaseTopic when empty.
func NewNotifier(log *zap.Logger, pub Publisher, topicBase string) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	if topicBase == "" {
		topicBase = screener.BaseTopic
	}
	return &Notifier{pub: pub, topicBase: topicBase, log: log}
}

// IngestProgress publishes a download progress update.
func (n *Notifier) IngestProgress(evt screener.IngestProgressEvent) {
	n.publish(screener.TopicIngestProgress(n.topicBase, evt.IngestUUID), 0, false, evt)
}

// IngestState publishes an ingest state transition.
func (n *Notifier) IngestState(evt screener.IngestStateEvent) {
	n.publish(screener.TopicIngestState(n.topicBase, evt.IngestUUID), 1, true, evt)
}

// PlaybackState publishes the player status.
func (n *Notifier) PlaybackState(evt screener.PlaybackStateEvent) {
	n.publish(screener.TopicPlaybackState(n.topicBase), 1, true, evt)
}

func (n *Notifier) publish(topic string, qos byte, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		n.log.Error("encode notification", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := n.pub.Publish(topic, qos, retained, payload); err != nil {
		n.log.Warn("publish notification", zap.String("topic", topic), zap.Error(err))
	}
}
