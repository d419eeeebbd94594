package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/screener/pkg/klv"
	"github.com/mikey-austin/screener/pkg/screener"
)

// DefaultMaxFrameBytes bounds a request payload unless configured.
const DefaultMaxFrameBytes = 16 << 20

// Config configures the TCP listener.
type Config struct {
	Addr          string
	MaxFrameBytes uint64
	IdleTimeout   time.Duration
}

// Server accepts client connections and answers framed commands. Each
// connection is served by its own goroutine; requests on a connection are
// handled one at a time.
type Server struct {
	log      *zap.Logger
	screener *Screener
	cfg      Config
	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Listen binds the listener. Run must be called to serve it.
func Listen(log *zap.Logger, s *Screener, cfg Config) (*Server, error) {
	if s == nil {
		return nil, errors.New("screener required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf(":%d", screener.DefaultPort)
	}
	if cfg.MaxFrameBytes == 0 {
		cfg.MaxFrameBytes = DefaultMaxFrameBytes
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return &Server{
		log:      log,
		screener: s,
		cfg:      cfg,
		listener: ln,
		conns:    map[net.Conn]struct{}{},
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Run serves connections until ctx is cancelled, then closes every open
// connection and waits for their goroutines.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("listening", zap.String("addr", s.Addr().String()))

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = s.listener.Close()
		s.closeConns()
	}()
	defer close(stop)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.Warn("accept failed", zap.Error(err))
				continue
			}
			s.closeConns()
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}
		s.track(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serve(ctx, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	log := s.log.With(zap.String("remote", conn.RemoteAddr().String()))
	log.Debug("client connected")
	defer log.Debug("client disconnected")

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}
		key, payload, err := klv.ReadFrame(r, klv.KeyLength, s.cfg.MaxFrameBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn("closing connection", zap.Error(err))
			}
			return
		}
		cmd, err := screener.CommandFromKey(key)
		if err != nil {
			log.Warn("closing connection", zap.Error(err))
			return
		}
		if !screener.HasSignature(key) {
			log.Debug("key without signature", zap.Stringer("command", cmd))
		}

		reply, err := s.screener.Dispatch(ctx, cmd, payload)
		if err != nil {
			log.Warn("closing connection", zap.Error(err))
			return
		}
		body, err := json.Marshal(reply)
		if err != nil {
			log.Error("encode reply", zap.Stringer("command", cmd), zap.Error(err))
			body, _ = json.Marshal(screener.Fail(screener.StatusInternalError).WithTrace(err.Error()))
		}
		if err := klv.WriteFrame(w, key, body); err != nil {
			log.Warn("write reply", zap.Error(err))
			return
		}
		if err := w.Flush(); err != nil {
			log.Warn("write reply", zap.Error(err))
			return
		}
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
