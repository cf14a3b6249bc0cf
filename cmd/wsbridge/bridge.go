package main

import (
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/config"
	"github.com/omochice/wsbridge/internal/metrics"
	"github.com/omochice/wsbridge/internal/queue"
	"github.com/omochice/wsbridge/internal/relay"
	"github.com/omochice/wsbridge/internal/transport/ws"
)

// newQueue creates a payload queue whose evictions are counted and logged.
func newQueue(name string, capacity int, reporter *metrics.Reporter, logger *zap.Logger) *queue.Queue[[]byte] {
	q := queue.New(capacity, func(payload []byte) {
		reporter.QueueDropped(name)
		logger.Warn("queue full, dropped oldest payload",
			zap.String("queue", name),
			zap.Int("bytes", len(payload)))
	})
	reporter.RegisterQueue(name, q.Len)
	return q
}

// newConnector wires the upstream connector between source and sink.
func newConnector(cfg *config.Config, source relay.Source, sink relay.Sink, reporter *metrics.Reporter, logger *zap.Logger) *relay.Connector {
	dialer := &ws.Dialer{
		Timeout:      cfg.Upstream.DialTimeout.Std(),
		WriteTimeout: cfg.Upstream.WriteTimeout.Std(),
	}
	return relay.NewConnector(cfg.Upstream.URL, dialer.RelayDialer(), source, sink, relay.Config{
		RetryDelay:   cfg.Upstream.RetryDelay.Std(),
		PingInterval: cfg.Upstream.PingInterval.Std(),
		Observer:     reporter,
	}, logger.Named("connector"))
}
