// Package stdio implements the process-pipe front-end: JSON requests are
// read from stdin one per line and every upstream payload is written to
// stdout as one line.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/wsbridge/internal/relay"
	"github.com/omochice/wsbridge/pkg/protocol"
)

// DefaultMaxLineSize is the longest stdin line accepted, newline included.
const DefaultMaxLineSize = 1 << 20

const readBufferSize = 64 << 10

// IntakeConfig configures stdin intake.
type IntakeConfig struct {
	// CorrelationField is stamped into every request when Stamp is set.
	CorrelationField string
	Stamp            bool
	MaxLineSize      int
}

// Intake reads requests from stdin and enqueues them for the upstream.
type Intake struct {
	r       io.Reader
	out     relay.Sink
	tracker *Tracker
	cfg     IntakeConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewIntake creates an intake reading r and pushing to out. tracker may be nil.
func NewIntake(r io.Reader, out relay.Sink, tracker *Tracker, cfg IntakeConfig, logger *zap.Logger) *Intake {
	if cfg.CorrelationField == "" {
		cfg.CorrelationField = protocol.DefaultCorrelationField
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = DefaultMaxLineSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Intake{
		r:       r,
		out:     out,
		tracker: tracker,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Run reads lines until EOF, a read error or ctx ends. EOF returns nil.
// The underlying read cannot be interrupted, so callers should not wait for
// Run on shutdown.
func (in *Intake) Run(ctx context.Context) error {
	br := bufio.NewReaderSize(in.r, readBufferSize)

	var line []byte
	discarding := false

	for {
		frag, err := br.ReadSlice('\n')
		if len(frag) > 0 && !discarding {
			if len(line)+len(frag) > in.cfg.MaxLineSize {
				discarding = true
				line = line[:0]
				in.logger.Warn("discarding oversized stdin line",
					zap.Int("limit", in.cfg.MaxLineSize))
			} else {
				line = append(line, frag...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if !discarding && len(line) > 0 {
			in.handleLine(line)
		}
		line = line[:0]
		discarding = false

		if err != nil {
			if errors.Is(err, io.EOF) {
				in.logger.Info("stdin closed")
				return nil
			}
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (in *Intake) handleLine(raw []byte) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return
	}
	received := in.now()

	in.logger.Debug("stdin line received", zap.ByteString("line", trimmed))

	if !protocol.IsObject(trimmed) {
		in.logger.Warn("failed to parse stdin line", zap.ByteString("line", trimmed))
		return
	}

	payload := append([]byte(nil), trimmed...)
	if in.cfg.Stamp {
		stamped, err := protocol.StampCorrelation(payload, in.cfg.CorrelationField, received)
		if err != nil {
			in.logger.Warn("failed to stamp stdin request", zap.Error(err))
			return
		}
		payload = stamped
	}

	if id, ok := protocol.RequestID(payload); ok {
		in.tracker.Track(id, received)
	}

	if err := in.out.Push(payload); err != nil {
		in.logger.Warn("failed to queue stdin request", zap.Error(err))
		return
	}
	in.logger.Debug("queued stdin request", zap.Int("bytes", len(payload)))
}
