// ABOUTME: Prometheus collectors reporting request coordinator activity
// ABOUTME: Nil-safe recording helpers so components can run without metrics

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "vito"

// Metrics exposes Prometheus collectors for the dispatcher.
type Metrics struct {
	requests        *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	stops           *prometheus.CounterVec
	providerErrors  *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	queued          prometheus.Counter
	sweptTotal      prometheus.Counter
	persistFailures *prometheus.CounterVec
}

// Gauges are sampled from live state when scraped.
type Gauges struct {
	InFlight func() int
	Waiting  func() int
}

// MustNew constructs Metrics and registers them, panicking on conflicts the
// same way promauto does.
func MustNew(reg prometheus.Registerer, gauges Gauges) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Inbound requests by parsed command.",
		}, []string{"command"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_outcomes_total",
			Help:      "Finished units of work by terminal state.",
		}, []string{"outcome"}),
		stops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stops_total",
			Help:      "Stop commands by result.",
		}, []string{"result"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Provider failures by provider and kind.",
		}, []string{"provider", "kind"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Completion call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"route"}),
		queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "queued_total",
			Help:      "Requests that had to wait at the admission gate.",
		}),
		sweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "swept_total",
			Help:      "Idle conversations removed by the sweeper.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed writes to the conversation or memory store.",
		}, []string{"store"}),
	}

	cs := []prometheus.Collector{
		m.requests, m.outcomes, m.stops, m.providerErrors,
		m.providerLatency, m.queued, m.sweptTotal, m.persistFailures,
	}
	if gauges.InFlight != nil {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Registered task handles.",
		}, func() float64 { return float64(gauges.InFlight()) }))
	}
	if gauges.Waiting != nil {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "waiting",
			Help:      "Requests currently held at the admission gate.",
		}, func() float64 { return float64(gauges.Waiting()) }))
	}
	reg.MustRegister(cs...)
	return m
}

// NewRegistry returns a registry preloaded with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (m *Metrics) Request(command string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(command).Inc()
}

func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Stop(result string) {
	if m == nil {
		return
	}
	m.stops.WithLabelValues(result).Inc()
}

func (m *Metrics) ProviderError(provider, kind string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(provider, kind).Inc()
}

func (m *Metrics) ProviderLatency(route string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) Queued() {
	if m == nil {
		return
	}
	m.queued.Inc()
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptTotal.Add(float64(n))
}

func (m *Metrics) PersistFailure(store string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(store).Inc()
}
