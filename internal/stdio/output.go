package stdio

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// Output is the stdio inbound sink: every relayed payload is written
// verbatim as one line and flushed immediately.
type Output struct {
	mu      sync.Mutex
	w       *bufio.Writer
	tracker *Tracker
}

// NewOutput creates a sink writing to w. tracker may be nil.
func NewOutput(w io.Writer, tracker *Tracker) *Output {
	return &Output{w: bufio.NewWriter(w), tracker: tracker}
}

// Push writes payload and a newline, then reports reply latency.
func (o *Output) Push(payload []byte) error {
	if err := o.writeLine(payload); err != nil {
		return err
	}
	o.tracker.Resolve(payload)
	return nil
}

func (o *Output) writeLine(payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, err := o.w.Write(payload); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := o.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := o.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}
	return nil
}
