// Package ws provides the WebSocket plumbing of the bridge: the upstream
// client connection built on gobwas/ws and the device-side server used by
// the simulator.
package ws

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/wsbridge/internal/relay"
)

const (
	// DefaultDialTimeout bounds the TCP connect and opening handshake.
	DefaultDialTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 10 * time.Second

	closeTimeout = time.Second
)

// Dialer opens upstream client connections.
type Dialer struct {
	Timeout      time.Duration
	WriteTimeout time.Duration
}

// Dial connects to endpoint and completes the opening handshake.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (*ClientConn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	dialer := ws.Dialer{Timeout: timeout}
	conn, br, _, err := dialer.Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	return newClientConn(conn, br, d.WriteTimeout), nil
}

// RelayDialer adapts d to relay.Dialer.
func (d *Dialer) RelayDialer() relay.Dialer {
	return relay.DialFunc(func(ctx context.Context, endpoint string) (relay.Conn, error) {
		conn, err := d.Dial(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// ClientConn is one client-side WebSocket connection. Reads happen from a
// single goroutine; writes, including control frame replies issued while
// reading, are serialized by mu.
type ClientConn struct {
	conn         net.Conn
	rw           io.ReadWriter
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newClientConn(conn net.Conn, br *bufio.Reader, writeTimeout time.Duration) *ClientConn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	c := &ClientConn{conn: conn, writeTimeout: writeTimeout}

	// br holds bytes the server sent right after the handshake response.
	var r io.Reader = conn
	if br != nil {
		r = br
	}
	c.rw = struct {
		io.Reader
		io.Writer
	}{r, lockedWriter{c}}

	return c
}

// Read returns the payload of the next text or binary message. Ping frames
// are answered and close frames end the connection.
func (c *ClientConn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	data, _, err := wsutil.ReadServerData(c.rw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return data, nil
}

// Write sends data as one text frame.
func (c *ClientConn) Write(ctx context.Context, data []byte) error {
	var buf bytes.Buffer
	if err := wsutil.WriteClientMessage(&buf, ws.OpText, data); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return c.writeFrame(ctx, buf.Bytes())
}

// Ping sends a ping control frame.
func (c *ClientConn) Ping(ctx context.Context) error {
	var buf bytes.Buffer
	if err := wsutil.WriteClientMessage(&buf, ws.OpPing, nil); err != nil {
		return fmt.Errorf("failed to encode ping: %w", err)
	}
	return c.writeFrame(ctx, buf.Bytes())
}

// Close sends a close frame if the connection is not busy writing, then
// closes the socket.
func (c *ClientConn) Close() error {
	c.closeOnce.Do(func() {
		if c.mu.TryLock() {
			var buf bytes.Buffer
			body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
			if err := wsutil.WriteClientMessage(&buf, ws.OpClose, body); err == nil {
				_ = c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
				_, _ = c.conn.Write(buf.Bytes())
			}
			c.mu.Unlock()
		}
		c.closeErr = c.conn.Close()
		if errors.Is(c.closeErr, net.ErrClosed) {
			c.closeErr = nil
		}
	})
	return c.closeErr
}

// RemoteAddr returns the server address.
func (c *ClientConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *ClientConn) writeFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// lockedWriter routes control replies written by wsutil through the
// connection write lock.
type lockedWriter struct {
	c *ClientConn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()

	_ = w.c.conn.SetWriteDeadline(time.Now().Add(w.c.writeTimeout))
	return w.c.conn.Write(p)
}

// Compile-time checks
var (
	_ relay.Conn   = (*ClientConn)(nil)
	_ relay.Pinger = (*ClientConn)(nil)
)
