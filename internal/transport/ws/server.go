package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/relay"
)

// Handler serves one accepted device-side connection. ServeConn returns
// when the connection is done; the server closes it afterwards.
type Handler interface {
	ServeConn(ctx context.Context, conn *ServerConn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn *ServerConn)

// ServeConn implements Handler.
func (f HandlerFunc) ServeConn(ctx context.Context, conn *ServerConn) {
	f(ctx, conn)
}

// Server accepts WebSocket connections on a single path.
type Server struct {
	address  string
	path     string
	handler  Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer creates a WebSocket server that hands connections on path to handler.
func NewServer(address, path string, handler Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = "/"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address: address,
		path:    path,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("websocket server started",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.path))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop closes the listener and every active connection, then waits for
// handlers to return.
func (s *Server) Stop() {
	s.cancel()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// URL returns the ws:// URL clients dial.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + s.path
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to accept websocket connection", zap.Error(err))
		return
	}

	conn := NewServerConn(wsConn, r.RemoteAddr)

	// Hijacked connections are not tracked by Shutdown.
	s.wg.Add(1)
	defer s.wg.Done()

	stop := context.AfterFunc(s.ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	s.logger.Debug("client connected", zap.String("remote", conn.RemoteAddr()))
	s.handler.ServeConn(s.ctx, conn)
	s.logger.Debug("client disconnected", zap.String("remote", conn.RemoteAddr()))
}

// ServerConn adapts a gorilla connection to frame-level Read and Write.
// Write is safe for concurrent use.
type ServerConn struct {
	conn       *websocket.Conn
	remoteAddr string
	writeMu    sync.Mutex
	closeOnce  sync.Once
}

// NewServerConn wraps a gorilla connection with the specified remote address.
func NewServerConn(conn *websocket.Conn, addr string) *ServerConn {
	return &ServerConn{conn: conn, remoteAddr: addr}
}

// Read reads the next data message.
func (c *ServerConn) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return data, err
}

// Write sends data as one text message.
func (c *ServerConn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if d, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(d)
	} else {
		_ = c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the connection.
func (c *ServerConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeTimeout))
		err = c.conn.Close()
	})
	return err
}

// RemoteAddr returns the client address.
func (c *ServerConn) RemoteAddr() string {
	return c.remoteAddr
}

var _ relay.Conn = (*ServerConn)(nil)
