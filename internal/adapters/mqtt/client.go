// Package mqtt subscribes to the daemon's notifications for the CLI.
package mqtt

import (
	"context"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mikey-austin/screener/internal/adapters/tlsfiles"
	"github.com/mikey-austin/screener/internal/ports"
	"github.com/mikey-austin/screener/pkg/screener"
)

// Options configures the MQTT client.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLS       tlsfiles.Files
	TopicBase string
	Timeout   time.Duration
}

// Message is one notification.
type Message = ports.Notification

// Client is a subscribing broker connection.
type Client struct {
	client    paho.Client
	topicBase string
	timeout   time.Duration
}

// NewClient creates and connects an MQTT client.
func NewClient(opts Options) (*Client, error) {
	if opts.TopicBase == "" {
		opts.TopicBase = screener.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
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

	c := &Client{client: paho.NewClient(clientOpts), topicBase: opts.TopicBase, timeout: opts.Timeout}
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return c, nil
}

// Close disconnects.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

// Watch streams every notification under the topic base, or under filter
// when set, until ctx is done. The channel is closed on return.
func (c *Client) Watch(ctx context.Context, filter string) (<-chan Message, error) {
	if filter == "" {
		filter = screener.TopicAll(c.topicBase)
	}
	out := make(chan Message, 32)
	var (
		mu     sync.Mutex
		closed bool
	)
	handler := func(_ paho.Client, msg paho.Message) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- Message{Topic: msg.Topic(), Payload: msg.Payload()}:
		default:
		}
	}
	if token := c.client.Subscribe(filter, 1, handler); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	go func() {
		<-ctx.Done()
		token := c.client.Unsubscribe(filter)
		token.WaitTimeout(c.timeout)
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()
	return out, nil
}
