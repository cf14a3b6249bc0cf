package test

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/device"
	"github.com/omochice/wsbridge/internal/metrics"
	"github.com/omochice/wsbridge/internal/queue"
	"github.com/omochice/wsbridge/internal/relay"
	"github.com/omochice/wsbridge/internal/server"
	"github.com/omochice/wsbridge/internal/stdio"
	"github.com/omochice/wsbridge/internal/transport/ws"
)

func startDevice(t *testing.T) *ws.Server {
	t.Helper()
	dev := device.New(device.Config{}, zap.NewNop())
	srv := ws.NewServer("127.0.0.1:0", "/ws", dev, zap.NewNop())
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func startConnector(t *testing.T, url string, src relay.Source, sink relay.Sink, obs relay.Observer) *relay.Connector {
	t.Helper()
	dialer := &ws.Dialer{Timeout: time.Second}
	c := relay.NewConnector(url, dialer.RelayDialer(), src, sink,
		relay.Config{RetryDelay: 50 * time.Millisecond, Observer: obs}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return c
}

// readEvents streams SSE data payloads into a channel.
func readEvents(t *testing.T, url string) <-chan string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	events := make(chan string, 16)
	go func() {
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "data: ") {
				select {
				case events <- strings.TrimPrefix(line, "data: "):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events
}

func nextPayload(t *testing.T, events <-chan string) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev == "connected" || ev == "heartbeat" {
				continue
			}
			return ev
		case <-deadline:
			t.Fatal("timeout waiting for payload")
			return ""
		}
	}
}

// TestIntegration_HTTPBridge posts a request before any upstream session
// exists and expects the device reply on the SSE stream.
func TestIntegration_HTTPBridge(t *testing.T) {
	reporter := metrics.NewReporter()
	inbound := queue.New[[]byte](16, nil)
	outbound := queue.New[[]byte](16, nil)

	front := server.New(server.Config{HeartbeatInterval: 100 * time.Millisecond, Metrics: reporter.Handler()},
		inbound, outbound, nil, zap.NewNop())
	ts := httptest.NewServer(front.Handler())
	defer ts.Close()

	events := readEvents(t, ts.URL)

	resp, err := http.Post(ts.URL+"/send", "application/json",
		strings.NewReader(`{"message":"{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"light/on\"}"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	dev := startDevice(t)
	startConnector(t, dev.URL(), outbound, inbound, reporter)

	reply := nextPayload(t, events)
	require.Equal(t, int64(1), gjson.Get(reply, "id").Int())
	require.Equal(t, "light/on", gjson.Get(reply, "result.method").String())

	resp, err = http.Post(ts.URL+"/send", "application/json", strings.NewReader(`{"message":"raw text"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "raw text", nextPayload(t, events))
}

// TestIntegration_Reconnect drops the first upstream session and expects
// traffic to resume on the next one.
func TestIntegration_Reconnect(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		n := conns.Add(1)
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if n == 1 {
				// First session dies before answering.
				return
			}
			_ = c.WriteMessage(websocket.TextMessage, append([]byte("echo:"), data...))
		}
	}))
	defer upstream.Close()

	inbound := queue.New[[]byte](16, nil)
	outbound := queue.New[[]byte](16, nil)
	url := "ws" + strings.TrimPrefix(upstream.URL, "http")
	c := startConnector(t, url, outbound, inbound, nil)

	require.NoError(t, outbound.Push([]byte("lost")))
	require.Eventually(t, func() bool { return conns.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return c.Status().State == relay.StateConnected }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, outbound.Push([]byte("kept")))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	got, err := inbound.Pop(ctx)
	require.NoError(t, err)
	require.Equal(t, "echo:kept", string(got))
	require.Zero(t, inbound.Len())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimSuffix(b.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// TestIntegration_StdioBridge feeds JSON lines through stdin and expects
// one stdout line per device reply, with latency reported.
func TestIntegration_StdioBridge(t *testing.T) {
	dev := startDevice(t)

	var latencies atomic.Int32
	tracker := stdio.NewTracker("_t_recv", time.Minute, func(time.Duration) { latencies.Add(1) }, zap.NewNop())

	stdout := &syncBuffer{}
	output := stdio.NewOutput(stdout, tracker)
	outbound := queue.New[[]byte](16, nil)

	stdinR, stdinW := io.Pipe()
	defer stdinW.Close()
	intake := stdio.NewIntake(stdinR, outbound, tracker, stdio.IntakeConfig{Stamp: true}, zap.NewNop())
	go func() { _ = intake.Run(context.Background()) }()

	startConnector(t, dev.URL(), outbound, output, nil)

	_, err := io.WriteString(stdinW, strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call"}`,
		`this is not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
	}, "\n")+"\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(stdout.Lines()) == 2 }, 3*time.Second, 10*time.Millisecond)

	lines := stdout.Lines()
	require.Equal(t, int64(1), gjson.Get(lines[0], "id").Int())
	require.Equal(t, int64(2), gjson.Get(lines[1], "id").Int())
	require.True(t, gjson.Get(lines[0], "_t_recv").Exists())
	require.Equal(t, int32(2), latencies.Load())
	require.Zero(t, tracker.Pending())
}
