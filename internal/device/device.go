// Package device implements a simulated WebSocket device. It answers
// JSON-RPC requests, echoes any other frame and can push periodic
// notifications, which is enough to drive a bridge end to end without
// hardware.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/relay"
	"github.com/omochice/wsbridge/internal/transport/ws"
	"github.com/omochice/wsbridge/pkg/protocol"
)

// Config configures the simulated device.
type Config struct {
	// CorrelationField is copied from each request into its reply.
	CorrelationField string
	// NotifyInterval enables periodic notifications when positive.
	NotifyInterval time.Duration
	// ReplyDelay simulates device processing time.
	ReplyDelay time.Duration
}

// Device answers requests from connected bridges.
type Device struct {
	cfg    Config
	hub    *Hub
	logger *zap.Logger
}

// New creates a Device.
func New(cfg Config, logger *zap.Logger) *Device {
	if cfg.CorrelationField == "" {
		cfg.CorrelationField = protocol.DefaultCorrelationField
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Device{cfg: cfg, hub: NewHub(), logger: logger}
}

// Hub returns the hub of connected clients.
func (d *Device) Hub() *Hub {
	return d.hub
}

// ServeConn implements ws.Handler.
func (d *Device) ServeConn(ctx context.Context, conn *ws.ServerConn) {
	d.HandleClient(ctx, conn)
}

// HandleClient serves conn until it fails or ctx ends.
func (d *Device) HandleClient(ctx context.Context, conn relay.Conn) {
	client := &Client{
		Conn:     conn,
		Outgoing: make(chan []byte, 16),
	}
	d.hub.Register(client)
	defer d.hub.Unregister(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		d.writeLoop(ctx, client)
	}()

	d.logger.Info("bridge connected", zap.String("remote", conn.RemoteAddr()))
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			d.logger.Info("bridge disconnected",
				zap.String("remote", conn.RemoteAddr()),
				zap.Error(err))
			break
		}

		reply, err := Respond(data, d.cfg.CorrelationField)
		if err != nil {
			d.logger.Warn("failed to build reply", zap.Error(err))
			continue
		}
		if reply == nil {
			continue
		}

		if d.cfg.ReplyDelay > 0 {
			select {
			case <-time.After(d.cfg.ReplyDelay):
			case <-ctx.Done():
			}
		}

		select {
		case client.Outgoing <- reply:
		case <-ctx.Done():
		}
	}

	cancel()
	<-writerDone
}

func (d *Device) writeLoop(ctx context.Context, client *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-client.Outgoing:
			if err := client.Conn.Write(ctx, data); err != nil {
				d.logger.Warn("failed to write to bridge", zap.Error(err))
				_ = client.Conn.Close()
				return
			}
		}
	}
}

// Run broadcasts a notification every NotifyInterval until ctx ends. It
// returns immediately when notifications are disabled.
func (d *Device) Run(ctx context.Context) error {
	if d.cfg.NotifyInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(d.cfg.NotifyInterval)
	defer ticker.Stop()

	for seq := 1; ; seq++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			n := d.hub.Broadcast(Notification(seq, now))
			d.logger.Debug("sent notification", zap.Int("seq", seq), zap.Int("clients", n))
		}
	}
}

// Respond builds the device answer to one frame. JSON-RPC requests get a
// result reply echoing the correlation field, notifications get nothing,
// and anything else is echoed back unchanged.
func Respond(data []byte, field string) ([]byte, error) {
	if !protocol.IsObject(data) {
		return data, nil
	}

	res := gjson.GetManyBytes(data, "id", "method")
	id, method := res[0], res[1]
	if !method.Exists() {
		return data, nil
	}
	if !id.Exists() || id.Type == gjson.Null {
		return nil, nil
	}

	reply := []byte(`{"jsonrpc":"2.0"}`)
	var err error
	if reply, err = sjson.SetRawBytes(reply, "id", []byte(id.Raw)); err != nil {
		return nil, fmt.Errorf("set id: %w", err)
	}
	if reply, err = sjson.SetBytes(reply, "result.method", method.String()); err != nil {
		return nil, fmt.Errorf("set result: %w", err)
	}
	if reply, err = sjson.SetBytes(reply, "result.ok", true); err != nil {
		return nil, fmt.Errorf("set result: %w", err)
	}
	return protocol.EchoCorrelation(reply, data, field)
}

// Notification builds the seq-th periodic notification.
func Notification(seq int, now time.Time) []byte {
	msg := []byte(`{"jsonrpc":"2.0","method":"notifications/state"}`)
	msg, _ = sjson.SetBytes(msg, "params.seq", seq)
	msg, _ = sjson.SetBytes(msg, "params.time", now.UTC().Format(time.RFC3339Nano))
	return msg
}

var _ ws.Handler = (*Device)(nil)
