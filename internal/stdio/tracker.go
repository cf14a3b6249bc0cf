package stdio

import (
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/omochice/wsbridge/pkg/protocol"
)

// DefaultCorrelationTTL is how long a request stays eligible for latency
// reporting.
const DefaultCorrelationTTL = 5 * time.Minute

// LatencyFunc receives the round-trip time of each correlated reply.
type LatencyFunc func(d time.Duration)

// Tracker remembers when each request id was read from stdin so that the
// matching reply can be timed.
type Tracker struct {
	pending   *cache.Cache
	field     string
	onLatency LatencyFunc
	logger    *zap.Logger
	now       func() time.Time
}

// NewTracker creates a tracker. field names the correlation field that
// replies may echo back.
func NewTracker(field string, ttl time.Duration, onLatency LatencyFunc, logger *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultCorrelationTTL
	}
	if field == "" {
		field = protocol.DefaultCorrelationField
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		pending:   cache.New(ttl, 2*ttl),
		field:     field,
		onLatency: onLatency,
		logger:    logger,
		now:       time.Now,
	}
}

// Track records that the request with the given raw id was received at.
func (t *Tracker) Track(id string, at time.Time) {
	if t == nil {
		return
	}
	t.pending.SetDefault(id, at)
}

// Resolve times payload when it is a reply carrying id and result. The
// tracked receive time wins over an echoed correlation field.
func (t *Tracker) Resolve(payload []byte) (time.Duration, bool) {
	if t == nil {
		return 0, false
	}

	reply, ok := protocol.InspectReply(payload, t.field)
	if !ok {
		return 0, false
	}

	var start time.Time
	if v, found := t.pending.Get(reply.ID); found {
		start = v.(time.Time)
		t.pending.Delete(reply.ID)
	} else if !reply.Stamp.IsZero() {
		start = reply.Stamp
	} else {
		return 0, false
	}

	latency := t.now().Sub(start)
	t.logger.Info("device reply latency",
		zap.String("id", reply.ID),
		zap.Duration("latency", latency))
	if t.onLatency != nil {
		t.onLatency(latency)
	}
	return latency, true
}

// Pending returns the number of requests awaiting a reply.
func (t *Tracker) Pending() int {
	if t == nil {
		return 0
	}
	return t.pending.ItemCount()
}
