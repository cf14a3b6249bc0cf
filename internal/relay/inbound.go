package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Inbound reads frames from a session and hands each payload to a Sink.
type Inbound struct {
	sink     Sink
	observer Observer
	logger   *zap.Logger
}

// NewInbound creates an inbound relay delivering to sink.
func NewInbound(sink Sink, observer Observer, logger *zap.Logger) *Inbound {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbound{sink: sink, observer: observer, logger: logger}
}

// Run relays payloads until the session read fails. It always returns a
// non-nil error: the read failure, or the context error on cancellation.
func (r *Inbound) Run(ctx context.Context, sess *Session) error {
	for {
		payload, err := sess.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}

		r.observer.PayloadRelayed(DirectionInbound, len(payload))
		r.logger.Debug("received upstream payload",
			zap.String("session", sess.ID),
			zap.Int("bytes", len(payload)))

		// Sink failures only affect this payload.
		if err := r.sink.Push(payload); err != nil {
			r.logger.Warn("failed to deliver inbound payload",
				zap.String("session", sess.ID),
				zap.Error(err))
		}
	}
}
