// Package observability wires Prometheus metrics and OpenTelemetry tracing
// into simulation runs.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvandessel/sernet/internal/ser"
)

// Collector bundles the Prometheus metrics for simulation runs. It satisfies
// ser.Observer so it can be attached to a run directly. A nil Collector is
// safe to use.
type Collector struct {
	gatherer prometheus.Gatherer

	Steps       prometheus.Counter
	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram

	Nodes      prometheus.Gauge
	Excited    prometheus.Gauge
	Refractory prometheus.Gauge
}

// NewCollector registers the run metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	steps, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ser_steps_total",
		Help: "Total number of simulated SER snapshots, including the initial one.",
	}), "ser_steps_total")
	if err != nil {
		return nil, err
	}

	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ser_runs_total",
		Help: "Total number of simulation runs, labeled by final status.",
	}, []string{"status"}), "ser_runs_total")
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ser_run_duration_seconds",
		Help:    "Wall-clock duration of simulation runs in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
	}), "ser_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	nodes, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ser_nodes",
		Help: "Number of nodes in the connectome of the current run.",
	}), "ser_nodes")
	if err != nil {
		return nil, err
	}
	excited, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ser_nodes_excited",
		Help: "Number of Excited nodes in the latest snapshot.",
	}), "ser_nodes_excited")
	if err != nil {
		return nil, err
	}
	refractory, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ser_nodes_refractory",
		Help: "Number of Refractory nodes in the latest snapshot.",
	}), "ser_nodes_refractory")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:    gatherer,
		Steps:       steps,
		Runs:        runs,
		RunDuration: duration,
		Nodes:       nodes,
		Excited:     excited,
		Refractory:  refractory,
	}, nil
}

// ObserveStep updates the step counter and state gauges.
func (c *Collector) ObserveStep(s ser.StepStats) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	c.Nodes.Set(float64(s.Counts.Quiescent + s.Counts.Excited + s.Counts.Refractory))
	c.Excited.Set(float64(s.Counts.Excited))
	c.Refractory.Set(float64(s.Counts.Refractory))
}

// RunFinished records the outcome and duration of a run.
func (c *Collector) RunFinished(status string, seconds float64) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(status).Inc()
	c.RunDuration.Observe(seconds)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// register registers col, returning the already registered collector of the
// same type when one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
