// Package metrics exposes Prometheus collectors for the poller and the run executor.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups every flows metric behind its own registry.
type Collector struct {
	registry *prometheus.Registry

	pollBatches  prometheus.Counter
	pollDuration prometheus.Histogram
	runsClaimed  prometheus.Counter
	runsSkipped  prometheus.Counter
	runErrors    prometheus.Counter

	actionOutcomes *prometheus.CounterVec
	actionLatency  *prometheus.HistogramVec
	runsFinished   *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "flows"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.pollBatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "batches_total",
		Help:      "Number of claimed batches processed",
	})

	c.pollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "pass_duration_seconds",
		Help:      "Duration of one poll pass",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	c.runsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "runs_claimed_total",
		Help:      "Number of runs claimed for execution",
	})

	c.runsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "runs_released_total",
		Help:      "Number of claimed runs released without execution",
	})

	c.runErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poller",
		Name:      "run_errors_total",
		Help:      "Number of runs whose execution returned an error",
	})

	c.actionOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "action",
		Name:      "outcomes_total",
		Help:      "Recorded action outcomes by kind and status",
	}, []string{"action", "status"})

	c.actionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "action",
		Name:      "duration_seconds",
		Help:      "Time spent executing an action",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"action"})

	c.runsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "run",
		Name:      "finished_total",
		Help:      "Runs that reached a terminal status",
	}, []string{"status"})

	c.registry.MustRegister(
		c.pollBatches,
		c.pollDuration,
		c.runsClaimed,
		c.runsSkipped,
		c.runErrors,
		c.actionOutcomes,
		c.actionLatency,
		c.runsFinished,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObservePass(batches, claimed, skipped, failed int, elapsed time.Duration) {
	c.pollBatches.Add(float64(batches))
	c.runsClaimed.Add(float64(claimed))
	c.runsSkipped.Add(float64(skipped))
	c.runErrors.Add(float64(failed))
	c.pollDuration.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveAction(action, status string, elapsed time.Duration) {
	c.actionOutcomes.WithLabelValues(action, status).Inc()
	c.actionLatency.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRunFinished(status string) {
	c.runsFinished.WithLabelValues(status).Inc()
}
