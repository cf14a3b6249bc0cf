// Package server implements the HTTP front-end of the bridge: an SSE stream
// of upstream payloads and a POST intake for payloads bound upstream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/relay"
)

const (
	// DefaultHeartbeatInterval is how long an SSE stream waits for a
	// payload before emitting a heartbeat event.
	DefaultHeartbeatInterval = 5 * time.Second
	// DefaultMaxBodySize limits POST /send bodies.
	DefaultMaxBodySize = 1 << 20
)

// InboundQueue is the queue SSE streams consume from.
type InboundQueue interface {
	PopTimeout(ctx context.Context, d time.Duration) ([]byte, bool, error)
	Len() int
}

// OutboundQueue is the queue POST /send feeds.
type OutboundQueue interface {
	Push(payload []byte) error
	Len() int
}

// StatusFunc reports the upstream connector state.
type StatusFunc func() relay.Status

// Config configures the HTTP front-end.
type Config struct {
	Address           string
	HeartbeatInterval time.Duration
	MaxBodySize       int64
	// Metrics is mounted on /metrics when non-nil.
	Metrics http.Handler
}

// Server is the HTTP/SSE front-end.
type Server struct {
	cfg      Config
	inbound  InboundQueue
	outbound OutboundQueue
	status   StatusFunc
	logger   *zap.Logger

	// ctx is the base context of every request; Stop cancels it so that
	// open SSE streams end.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
}

// New creates a Server. status may be nil.
func New(cfg Config, inbound InboundQueue, outbound OutboundQueue, status StatusFunc, logger *zap.Logger) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		inbound:  inbound,
		outbound: outbound,
		status:   status,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler returns the routes of the front-end wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", s.handleSSE)
	mux.HandleFunc("/send", s.handleSend)
	mux.HandleFunc("/status", s.handleStatus)
	if s.cfg.Metrics != nil {
		mux.Handle("/metrics", s.cfg.Metrics)
	}
	return withCORS(mux)
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("http server started", zap.String("addr", listener.Addr().String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop ends open SSE streams and shuts the server down, waiting at most
// until ctx is done for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	var err error
	if srv != nil {
		if err = srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
		}
	}
	s.wg.Wait()
	return err
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
