package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sajjad-MoBe/kvserver/node/src/internal/api"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/protocol"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/shared"
	"github.com/sajjad-MoBe/kvserver/node/src/internal/storage"
)

// Config holds the TCP server settings
type Config struct {
	Address        string
	ReadBufferSize int
	MaxFrameSize   int
	// IdleTimeout closes connections that send nothing for this long. Zero
	// disables it.
	IdleTimeout time.Duration
}

// Option configures optional server dependencies
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics *shared.Metrics) Option {
	return func(s *Server) { s.metrics = metrics }
}

// WithTracer sets the tracer used for per-request spans
func WithTracer(tracer *api.Tracer) Option {
	return func(s *Server) { s.tracer = tracer }
}

// Server accepts TCP connections and serves each one on its own goroutine
type Server struct {
	config     Config
	codec      protocol.Codec
	dispatcher *Dispatcher

	logger  *zap.Logger
	metrics *shared.Metrics
	tracer  *api.Tracer

	listener net.Listener
	closing  atomic.Bool

	mu         sync.Mutex
	conns      map[uint64]*Connection
	nextConnID uint64
	wg         sync.WaitGroup
}

// NewServer creates a server for store speaking codec
func NewServer(config Config, store storage.Store, codec protocol.Codec, opts ...Option) *Server {
	s := &Server{
		config: config,
		codec:  codec,
		conns:  make(map[uint64]*Connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = api.NoopTracer()
	}
	s.dispatcher = NewDispatcher(store, s.tracer, s.metrics, s.logger)
	return s
}

// Listen binds the configured address
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.config.Address, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until the listener is closed
func (s *Server) Serve() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.logger.Info("server listening",
		zap.String("addr", s.listener.Addr().String()),
		zap.String("protocol", s.codec.Name()),
	)

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.closing.Load() {
				return nil
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		c, ok := s.track(conn)
		if !ok {
			conn.Close()
			continue
		}
		go func() {
			defer s.untrack(c)
			c.Handle(context.Background())
		}()
	}
}

// ListenAndServe binds and serves
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown stops accepting, asks every connection to stop after its current
// request and waits for them. When ctx expires first the remaining
// connections are closed forcibly and ctx.Err() is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("closing listener failed", zap.Error(err))
		}
	}

	s.mu.Lock()
	for _, c := range s.conns {
		c.Stop()
	}
	active := len(s.conns)
	s.mu.Unlock()

	s.logger.Info("server shutting down", zap.Int("active_connections", active))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for _, c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

// ActiveConnections returns the number of connections being served
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(conn net.Conn) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return nil, false
	}

	s.nextConnID++
	c := newConnection(s.nextConnID, conn, s.codec, s.dispatcher, s.config, s.logger)
	s.conns[c.id] = c
	s.wg.Add(1)
	s.metrics.ConnectionOpened()
	return c, true
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	s.metrics.ConnectionClosed()
	s.wg.Done()
}
