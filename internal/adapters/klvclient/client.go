// Package klvclient is the TCP client for the screener wire protocol.
package klvclient

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mikey-austin/screener/pkg/klv"
	"github.com/mikey-austin/screener/pkg/screener"
)

// ErrKeyMismatch reports a reply for a different command.
var ErrKeyMismatch = errors.New("reply key does not match request")

// Options configures the client.
type Options struct {
	Addr          string
	Timeout       time.Duration
	MaxFrameBytes uint64
}

// Client holds one connection. Requests are serialised.
type Client struct {
	opts Options

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a screener server.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Addr == "" {
		opts.Addr = fmt.Sprintf("127.0.0.1:%d", screener.DefaultPort)
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: opts.Timeout}
	conn, err := d.DialContext(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", opts.Addr, err)
	}
	return &Client{opts: opts, conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send issues cmd with args and waits for the reply. A nil args sends an
// empty payload.
func (c *Client) Send(ctx context.Context, cmd screener.Command, args any) (screener.Reply, error) {
	payload, err := screener.EncodeArgs(args)
	if err != nil {
		return screener.Reply{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return screener.Reply{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	key := screener.Key(cmd)
	if err := klv.WriteFrame(c.conn, key, payload); err != nil {
		return screener.Reply{}, c.wrap(ctx, "send "+cmd.String(), err)
	}
	replyKey, body, err := klv.ReadFrame(c.r, klv.KeyLength, c.opts.MaxFrameBytes)
	if err != nil {
		return screener.Reply{}, c.wrap(ctx, "read "+cmd.String()+" reply", err)
	}
	if !bytes.Equal(replyKey, key) {
		return screener.Reply{}, fmt.Errorf("%w: %x", ErrKeyMismatch, replyKey)
	}
	return screener.DecodeReply(body)
}

func (c *Client) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%s: %w", op, err)
}
