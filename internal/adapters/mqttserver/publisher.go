// Package mqttserver publishes the daemon's notifications over MQTT.
package mqttserver

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/adapters/tlsfiles"
)

// Options configures the MQTT client.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLS       tlsfiles.Files
	Timeout   time.Duration
	Logger    *zap.Logger
	Debug     bool
}

// Client is a publishing connection to an external broker.
type Client struct {
	client  paho.Client
	log     *zap.Logger
	debug   bool
	timeout time.Duration
}

// NewClient connects to the broker.
func NewClient(opts Options) (*Client, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetCleanSession(true)
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		opts.Logger.Warn("mqtt connection lost", zap.String("broker", opts.BrokerURL), zap.Error(err))
	})
	clientOpts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		opts.Logger.Info("mqtt reconnecting", zap.String("broker", opts.BrokerURL))
	})
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}
	tlsConfig, err := opts.TLS.Client()
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	client := paho.NewClient(clientOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Client{client: client, log: opts.Logger, debug: opts.Debug, timeout: opts.Timeout}, nil
}

// Publish sends one message, waiting at most the configured timeout.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnectionOpen() {
		return errNotConnected
	}
	if c.debug {
		c.log.Debug("mqtt publish", zap.String("topic", topic), zap.Bool("retained", retained), zap.String("payload", truncatePayload(payload)))
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.timeout) {
		return errPublishTimeout
	}
	return token.Error()
}

// Close disconnects, allowing in-flight messages a short grace period.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

// truncatePayload keeps debug lines readable for large playlist events.
func truncatePayload(payload []byte) string {
	const limit = 512
	if len(payload) > limit {
		return string(payload[:limit]) + "..."
	}
	return string(payload)
}
