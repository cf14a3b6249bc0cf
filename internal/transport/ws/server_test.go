package ws_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/transport/ws"
)

func echoHandler() ws.Handler {
	return ws.HandlerFunc(func(ctx context.Context, conn *ws.ServerConn) {
		for {
			data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if err := conn.Write(ctx, data); err != nil {
				return
			}
		}
	})
}

func startServer(t *testing.T, h ws.Handler) *ws.Server {
	t.Helper()
	srv := ws.NewServer("127.0.0.1:0", "/ws", h, zap.NewNop())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func TestServer_Addr(t *testing.T) {
	srv := startServer(t, echoHandler())

	addr := srv.Addr()
	require.NotEmpty(t, addr)
	require.True(t, strings.Contains(addr, ":"), "Addr() = %q, expected host:port format", addr)
	require.Equal(t, "ws://"+addr+"/ws", srv.URL())
}

func TestServer_Echo(t *testing.T) {
	srv := startServer(t, echoHandler())

	conn, _, err := websocket.DefaultDialer.Dial(srv.URL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	require.Equal(t, "ping", string(data))
}

func TestServer_WithClientConn(t *testing.T) {
	srv := startServer(t, echoHandler())

	d := &ws.Dialer{Timeout: time.Second}
	conn, err := d.Dial(context.Background(), srv.URL())
	require.NoError(t, err)
	defer conn.Close()

	for _, msg := range []string{"a", "b", "b"} {
		require.NoError(t, conn.Write(context.Background(), []byte(msg)))
	}
	for _, want := range []string{"a", "b", "b"} {
		got, err := conn.Read(context.Background())
		require.NoError(t, err)
		require.Equal(t, want, string(got))
	}
}

func TestServer_StopClosesClients(t *testing.T) {
	srv := ws.NewServer("127.0.0.1:0", "/ws", echoHandler(), zap.NewNop())
	require.NoError(t, srv.Start())

	conn, _, err := websocket.DefaultDialer.Dial(srv.URL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Stop")
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, err = websocket.DefaultDialer.DialContext(ctx, srv.URL(), nil)
	require.Error(t, err)
}
