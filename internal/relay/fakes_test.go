package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/omochice/wsbridge/internal/relay/relaytest"
)

// sliceSink records pushed payloads.
type sliceSink struct {
	mu    sync.Mutex
	items [][]byte
	got   chan struct{}
	err   error
}

func newSliceSink() *sliceSink {
	return &sliceSink{got: make(chan struct{}, 100)}
}

func (s *sliceSink) Push(payload []byte) error {
	s.mu.Lock()
	s.items = append(s.items, payload)
	s.mu.Unlock()
	s.got <- struct{}{}
	return s.err
}

func (s *sliceSink) Items() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.items))
	copy(out, s.items)
	return out
}

// chanSource serves payloads from a channel.
type chanSource chan []byte

func (c chanSource) Pop(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case p := <-c:
		return p, nil
	}
}

var errDialRefused = errors.New("connection refused")

var (
	_ Conn   = (*relaytest.Conn)(nil)
	_ Pinger = (*relaytest.Conn)(nil)
)
