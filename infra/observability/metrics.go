// Package observability exposes the Prometheus metrics recorded by the
// treasury services. All methods are safe on a nil receiver so services can
// run without metrics in tests.
package observability

import (
	"sync"
	"time"

	pkgobs "github.com/amirasaad/treasury/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the treasury collectors.
type Metrics struct {
	ledgerWrites    *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	railLatency     *prometheus.HistogramVec
	batchTransition *prometheus.CounterVec
	comps           *prometheus.CounterVec
	sunsetPct       prometheus.Gauge
	sunsetTriggered prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

var (
	metricsOnce sync.Once
	registry    *Metrics
)

// Treasury returns the process-wide metrics, registering them on first use.
func Treasury() *Metrics {
	metricsOnce.Do(func() {
		registry = newMetrics()
		prometheus.MustRegister(registry.collectors()...)
	})
	return registry
}

// NewUnregistered builds collectors without registering them, for tests that
// assert on values.
func NewUnregistered() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "ledger",
			Name:      "transactions_total",
			Help:      "Ledger transactions appended, by pool and direction.",
		}, []string{"pool", "direction"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "rail",
			Name:      "settlements_total",
			Help:      "Settlement rail calls, by pool and outcome.",
		}, []string{"pool", "outcome"}),
		railLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "treasury",
			Subsystem: "rail",
			Name:      "send_duration_seconds",
			Help:      "Latency of settlement rail calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pool"}),
		batchTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "payout",
			Name:      "batch_transitions_total",
			Help:      "Payout batch state transitions.",
		}, []string{"to"}),
		comps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "comp",
			Name:      "outcomes_total",
			Help:      "Comp settlement outcomes.",
		}, []string{"outcome"}),
		sunsetPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "treasury",
			Subsystem: "sunset",
			Name:      "percentage",
			Help:      "Latest rolling volume as a percentage of the sunset threshold.",
		}),
		sunsetTriggered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "treasury",
			Subsystem: "sunset",
			Name:      "triggered",
			Help:      "1 once the sunset latch is set.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treasury",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "treasury",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ledgerWrites, m.settlements, m.railLatency, m.batchTransition, m.comps,
		m.sunsetPct, m.sunsetTriggered, m.httpRequests, m.httpLatency,
	}
}

func (m *Metrics) LedgerWrite(pool, direction string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(pool, direction).Inc()
}

// Settlement records one rail call.
func (m *Metrics) Settlement(pool string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.settlements.WithLabelValues(pool, outcome).Inc()
	m.railLatency.WithLabelValues(pool).Observe(d.Seconds())
}

func (m *Metrics) BatchTransition(to string) {
	if m == nil {
		return
	}
	m.batchTransition.WithLabelValues(to).Inc()
}

func (m *Metrics) CompOutcome(outcome string) {
	if m == nil {
		return
	}
	m.comps.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Sunset(percentage float64, triggered bool) {
	if m == nil {
		return
	}
	m.sunsetPct.Set(percentage)
	if triggered {
		m.sunsetTriggered.Set(1)
	} else {
		m.sunsetTriggered.Set(0)
	}
}

func (m *Metrics) HTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

var _ pkgobs.Recorder = (*Metrics)(nil)
