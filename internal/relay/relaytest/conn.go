// Package relaytest provides an in-memory connection for tests of code that
// consumes relay.Conn.
package relaytest

import (
	"context"
	"io"
	"sync"
)

// Conn is an in-memory connection. Payloads sent on Incoming are returned
// by Read; closing Incoming makes Read return io.EOF.
type Conn struct {
	Incoming chan []byte
	// Writes receives a signal after every successful Write.
	Writes chan struct{}
	// Pings receives a signal for every Ping.
	Pings chan struct{}
	// WriteErr, when set, fails every Write.
	WriteErr error

	mu         sync.Mutex
	written    [][]byte
	closeOnce  sync.Once
	closed     chan struct{}
	remoteAddr string
}

// NewConn returns an open Conn reporting addr as its remote address.
func NewConn(addr string) *Conn {
	return &Conn{
		Incoming:   make(chan []byte, 10),
		Writes:     make(chan struct{}, 64),
		Pings:      make(chan struct{}, 10),
		closed:     make(chan struct{}),
		remoteAddr: addr,
	}
}

func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, io.EOF
	case data, ok := <-c.Incoming:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (c *Conn) Write(ctx context.Context, data []byte) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.mu.Lock()
	c.written = append(c.written, append([]byte(nil), data...))
	c.mu.Unlock()

	select {
	case c.Writes <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Ping(ctx context.Context) error {
	select {
	case c.Pings <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Written returns a copy of every payload written so far.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
