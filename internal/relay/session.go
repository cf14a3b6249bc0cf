package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionClosed is returned for I/O on a session after Close.
var ErrSessionClosed = errors.New("session closed")

// Session is one established upstream connection. It is owned by the
// Connector and handed only to the relays of the serve call that opened it.
type Session struct {
	ID       string
	Endpoint string
	OpenedAt time.Time

	conn      Conn
	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func newSession(endpoint string, conn Conn, openedAt time.Time) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Endpoint: endpoint,
		OpenedAt: openedAt,
		conn:     conn,
		closed:   make(chan struct{}),
	}
}

// Read returns the next payload received on the session.
func (s *Session) Read(ctx context.Context) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrSessionClosed
	}
	return s.conn.Read(ctx)
}

// Write sends payload as one frame.
func (s *Session) Write(ctx context.Context, payload []byte) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	return s.conn.Write(ctx, payload)
}

// Close closes the underlying connection once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// RemoteAddr returns the address of the upstream peer.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
