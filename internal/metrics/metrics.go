// Package metrics exposes bridge activity to Prometheus. A Reporter is the
// observability sink for connector state transitions and relay counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omochice/wsbridge/internal/relay"
)

const namespace = "wsbridge"

// Reporter implements relay.Observer on a private registry.
type Reporter struct {
	registry *prometheus.Registry

	// connectionState is 1 for the current connector state and 0 for others.
	connectionState *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	// sessionsOpened counts successful dials.
	sessionsOpened prometheus.Counter
	payloads       *prometheus.CounterVec
	payloadBytes   *prometheus.CounterVec
	queueDrops     *prometheus.CounterVec
	replyLatency   prometheus.Histogram
}

// NewReporter creates a reporter with its own registry, including the Go
// runtime and process collectors.
func NewReporter() *Reporter {
	r := &Reporter{
		registry: prometheus.NewRegistry(),
		connectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Current upstream connection state (1 for the active state).",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_transitions_total",
			Help:      "Upstream connection state transitions, labeled by target state.",
		}, []string{"state"}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Upstream sessions successfully established.",
		}),
		payloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payloads_total",
			Help:      "Payloads relayed, labeled by direction.",
		}, []string{"direction"}),
		payloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Payload bytes relayed, labeled by direction.",
		}, []string{"direction"}),
		queueDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_dropped_total",
			Help:      "Payloads evicted from a full queue, labeled by queue.",
		}, []string{"queue"}),
		replyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reply_latency_seconds",
			Help:      "Round-trip time from stdin intake to the matching device reply.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.connectionState,
		r.transitions,
		r.sessionsOpened,
		r.payloads,
		r.payloadBytes,
		r.queueDrops,
		r.replyLatency,
	)

	r.setState(relay.StateDisconnected)
	return r
}

// StateChanged implements relay.Observer.
func (r *Reporter) StateChanged(ev relay.StateEvent) {
	r.setState(ev.State)
	r.transitions.WithLabelValues(ev.State.String()).Inc()
	if ev.State == relay.StateConnected {
		r.sessionsOpened.Inc()
	}
}

// PayloadRelayed implements relay.Observer.
func (r *Reporter) PayloadRelayed(dir relay.Direction, size int) {
	r.payloads.WithLabelValues(string(dir)).Inc()
	r.payloadBytes.WithLabelValues(string(dir)).Add(float64(size))
}

// QueueDropped counts one payload evicted from the named queue.
func (r *Reporter) QueueDropped(queue string) {
	r.queueDrops.WithLabelValues(queue).Inc()
}

// ObserveReplyLatency records one correlated reply round trip.
func (r *Reporter) ObserveReplyLatency(d time.Duration) {
	r.replyLatency.Observe(d.Seconds())
}

// RegisterQueue exposes the depth of a queue as a gauge.
func (r *Reporter) RegisterQueue(name string, depth func() int) {
	r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "queue_depth",
		Help:        "Payloads currently buffered, labeled by queue.",
		ConstLabels: prometheus.Labels{"queue": name},
	}, func() float64 { return float64(depth()) }))
}

// Registry returns the underlying registry.
func (r *Reporter) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Reporter) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Reporter) setState(current relay.State) {
	for _, s := range []relay.State{relay.StateDisconnected, relay.StateConnecting, relay.StateConnected} {
		v := 0.0
		if s == current {
			v = 1
		}
		r.connectionState.WithLabelValues(s.String()).Set(v)
	}
}

var _ relay.Observer = (*Reporter)(nil)
