// Package relay implements the reconnecting upstream connector and the two
// relays that move payloads between the live session and the queues.
package relay

import "context"

// Conn abstracts one upstream WebSocket connection.
// This interface isolates frame I/O details from the relay logic.
type Conn interface {
	// Read reads a single message payload.
	// Returns an error once the connection is closed or broken.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single text frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. It must be safe to call more than once
	// and must unblock a pending Read.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Pinger is implemented by connections that can send keepalive pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dialer opens upstream connections.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// DialFunc adapts a function to the Dialer interface.
type DialFunc func(ctx context.Context, endpoint string) (Conn, error)

// Dial implements Dialer.
func (f DialFunc) Dial(ctx context.Context, endpoint string) (Conn, error) {
	return f(ctx, endpoint)
}

// Source yields payloads for the outbound relay.
type Source interface {
	// Pop blocks until a payload is available.
	Pop(ctx context.Context) ([]byte, error)
}

// Sink accepts payloads from the inbound relay. Push must not block the
// caller for longer than a local write.
type Sink interface {
	Push(payload []byte) error
}
