// Package ports declares what the CLI core needs from the outside world.
package ports

import (
	"context"

	"github.com/mikey-austin/screener/pkg/screener"
)

// Transport sends one command to the daemon and waits for its reply.
type Transport interface {
	Send(ctx context.Context, cmd screener.Command, args any) (screener.Reply, error)
}

// Notification is one message from the daemon's event stream.
type Notification struct {
	Topic   string
	Payload []byte
}

// Notifications streams daemon events until ctx is done.
type Notifications interface {
	Watch(ctx context.Context, filter string) (<-chan Notification, error)
}

// Clock returns the current unix time in seconds.
type Clock interface {
	NowUnix() int64
}
