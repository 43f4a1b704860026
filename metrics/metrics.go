package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "luabox"

// Metrics holds all Prometheus metrics
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	SandboxesActive prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "runs_total",
				Help:      "Total number of script runs by final stage and failure kind",
			},
			[]string{"stage", "kind"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "run_duration_seconds",
				Help:      "Script run duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		SandboxesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "sandboxes_active",
				Help:      "Number of sandboxes currently open",
			},
		),
		registry: reg,
	}
}

// SandboxOpened records a newly created sandbox.
func (m *Metrics) SandboxOpened() {
	m.SandboxesActive.Inc()
}

// SandboxClosed records a closed sandbox.
func (m *Metrics) SandboxClosed() {
	m.SandboxesActive.Dec()
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(stage, kind string, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(stage, kind).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
