// Package broker runs an optional in-process MQTT broker that carries the
// server's ingest and playback notifications.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"go.uber.org/zap"

	"github.com/mikey-austin/screener/internal/adapters/tlsfiles"
)

// DefaultListen is the broker address unless configured.
const DefaultListen = "127.0.0.1:1883"

// Config configures the broker.
type Config struct {
	Listen         string
	AllowAnonymous bool
	Username       string
	Password       string
	TLS            tlsfiles.Files
}

// Broker is an embedded MQTT broker. Notifications published through it
// are delivered inline, without a client connection.
type Broker struct {
	log    *zap.Logger
	server *mqtt.Server
	config Config
}

// New builds a broker. Run starts its listener.
func New(log *zap.Logger, cfg Config) (*Broker, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	server := mqtt.New(&mqtt.Options{InlineClient: true, Logger: newSlogLogger(log)})

	switch {
	case cfg.AllowAnonymous:
		if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
			return nil, err
		}
	case cfg.Username != "":
		ledger := &auth.Ledger{
			Auth: auth.AuthRules{{Username: auth.RString(cfg.Username), Password: auth.RString(cfg.Password), Allow: true}},
			ACL:  auth.ACLRules{{Username: auth.RString(cfg.Username), Filters: auth.Filters{auth.RString("#"): auth.ReadWrite}}},
		}
		if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("embedded broker requires allow_anonymous or username")
	}
	return &Broker{log: log, server: server, config: cfg}, nil
}

// Run serves the TCP listener until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	tlsConfig, err := b.config.TLS.Server()
	if err != nil {
		return err
	}
	listener := listeners.NewTCP(listeners.Config{ID: "screener-tcp", Address: b.config.Listen, TLSConfig: tlsConfig})
	if err := b.server.AddListener(listener); err != nil {
		return fmt.Errorf("broker listen %s: %w", b.config.Listen, err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- b.server.Serve() }()
	b.log.Info("embedded broker listening", zap.String("addr", b.config.Listen))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("broker serve: %w", err)
		}
		<-ctx.Done()
	}
	return b.server.Close()
}

// Publish delivers a message to subscribers through the inline client.
func (b *Broker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return b.server.Publish(topic, payload, retained, qos)
}

// Subscribe registers an inline handler for filter.
func (b *Broker) Subscribe(filter string, id int, handler func(topic string, payload []byte)) error {
	return b.server.Subscribe(filter, id, func(_ *mqtt.Client, _ packets.Subscription, pk packets.Packet) {
		handler(pk.TopicName, pk.Payload)
	})
}

// URL returns the address clients use to reach the broker.
func (b *Broker) URL() string {
	return URL(b.config.Listen, b.config.TLS.Enabled())
}

// URL returns the broker URL for a listen address.
func URL(listen string, tlsEnabled bool) string {
	scheme := "mqtt"
	if tlsEnabled {
		scheme = "mqtts"
	}
	return fmt.Sprintf("%s://%s", scheme, listen)
}
