package correlation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels. Timeouts and evictions are kept apart so a reply lost to
// cleanup can be told from a consumer that never answered.
const (
	OutcomeRegistered     = "registered"
	OutcomeDuplicate      = "duplicate_id"
	OutcomeResolved       = "resolved"
	OutcomeUnmatched      = "unmatched_reply"
	OutcomeDuplicateReply = "duplicate_reply"
	OutcomeDelivered      = "delivered"
	OutcomeTimedOut       = "timed_out"
	OutcomeCancelled      = "cancelled"
	OutcomeEvicted        = "evicted"
	OutcomeRemoved        = "removed"
	OutcomeSwept          = "swept"
)

// Metrics holds Prometheus metrics for the pending request registry.
type Metrics struct {
	pending  prometheus.Gauge
	outcomes *prometheus.CounterVec
	wait     *prometheus.HistogramVec
}

// NewMetrics creates and registers the tracker metrics. A nil registerer disables them.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "epos",
			Subsystem: "correlation",
			Name:      "pending_requests",
			Help:      "Requests waiting for a reply",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "epos",
			Subsystem: "correlation",
			Name:      "events_total",
			Help:      "Pending slot lifecycle events by outcome",
		}, []string{"outcome"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "epos",
			Subsystem: "correlation",
			Name:      "wait_duration_seconds",
			Help:      "Time spent waiting for a reply",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{m.pending, m.outcomes, m.wait} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) record(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeWait(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
	m.wait.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
