package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/device"
	"github.com/omochice/wsbridge/internal/relay/relaytest"
	"github.com/omochice/wsbridge/internal/transport/ws"
)

func TestRespond(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "request with correlation field",
			in:   `{"jsonrpc":"2.0","id":7,"method":"tools/call","_t_recv":1.5}`,
			want: `{"jsonrpc":"2.0","id":7,"result":{"method":"tools/call","ok":true},"_t_recv":1.5}`,
		},
		{
			name: "string id",
			in:   `{"jsonrpc":"2.0","id":"a","method":"ping"}`,
			want: `{"jsonrpc":"2.0","id":"a","result":{"method":"ping","ok":true}}`,
		},
		{
			name: "notification gets no reply",
			in:   `{"jsonrpc":"2.0","method":"notify"}`,
			want: "",
		},
		{
			name: "object without method is echoed",
			in:   `{"hello":"world"}`,
			want: `{"hello":"world"}`,
		},
		{
			name: "plain text is echoed",
			in:   "on",
			want: "on",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := device.Respond([]byte(tt.in), "_t_recv")
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}
}

func TestNotification(t *testing.T) {
	msg := device.Notification(3, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "notifications/state", gjson.GetBytes(msg, "method").String())
	require.Equal(t, int64(3), gjson.GetBytes(msg, "params.seq").Int())
	require.False(t, gjson.GetBytes(msg, "id").Exists())
}

func TestDevice_HandleClient(t *testing.T) {
	d := device.New(device.Config{}, zap.NewNop())
	conn := relaytest.NewConn("bridge:1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.HandleClient(context.Background(), conn)
	}()

	conn.Incoming <- []byte(`{"jsonrpc":"2.0","id":1,"method":"light/on"}`)
	conn.Incoming <- []byte("raw")

	for i := 0; i < 2; i++ {
		select {
		case <-conn.Writes:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for reply")
		}
	}

	written := conn.Written()
	require.Equal(t, int64(1), gjson.GetBytes(written[0], "id").Int())
	require.True(t, gjson.GetBytes(written[0], "result.ok").Bool())
	require.Equal(t, "raw", string(written[1]))
	require.Equal(t, 1, d.Hub().ClientCount())

	close(conn.Incoming)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleClient did not return")
	}
	require.Zero(t, d.Hub().ClientCount())
}

func TestDevice_OverWebSocket(t *testing.T) {
	d := device.New(device.Config{NotifyInterval: 20 * time.Millisecond}, zap.NewNop())
	srv := ws.NewServer("127.0.0.1:0", "/ws", d, zap.NewNop())
	require.NoError(t, srv.Start())
	defer srv.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Run(ctx) }()

	conn, _, err := websocket.DefaultDialer.Dial(srv.URL(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":9,"method":"status"}`)))

	var gotReply, gotNotification bool
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !gotReply || !gotNotification {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		switch gjson.GetBytes(data, "method").String() {
		case "notifications/state":
			gotNotification = true
		default:
			require.Equal(t, int64(9), gjson.GetBytes(data, "id").Int())
			gotReply = true
		}
	}
}
