package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Outbound takes payloads from a Source and writes each as one frame.
type Outbound struct {
	source   Source
	observer Observer
	logger   *zap.Logger
}

// NewOutbound creates an outbound relay fed by source.
func NewOutbound(source Source, observer Observer, logger *zap.Logger) *Outbound {
	if observer == nil {
		observer = nopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbound{source: source, observer: observer, logger: logger}
}

// Run writes payloads until a write fails or ctx ends. A payload taken from
// the source whose write fails is dropped, not requeued.
func (r *Outbound) Run(ctx context.Context, sess *Session) error {
	for {
		payload, err := r.source.Pop(ctx)
		if err != nil {
			return err
		}

		if err := sess.Write(ctx, payload); err != nil {
			r.logger.Warn("dropping outbound payload after write failure",
				zap.String("session", sess.ID),
				zap.Int("bytes", len(payload)),
				zap.Error(err))
			return fmt.Errorf("write frame: %w", err)
		}

		r.observer.PayloadRelayed(DirectionOutbound, len(payload))
		r.logger.Debug("forwarded payload upstream",
			zap.String("session", sess.ID),
			zap.Int("bytes", len(payload)))
	}
}
