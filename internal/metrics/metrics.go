// Package metrics defines the prometheus collectors exported by the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the engine's metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	batchesApplied   *prometheus.CounterVec
	batchesCancelled prometheus.Counter
	applyDuration    prometheus.Histogram
	dependencies     *prometheus.GaugeVec
	itemsSkipped     *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what tests use.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		batchesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depsnap_batches_applied_total",
				Help: "Number of rule-change batches applied by project.",
			},
			[]string{"project"},
		),
		batchesCancelled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "depsnap_batches_cancelled_total",
				Help: "Number of batches cancelled before they were applied.",
			},
		),
		applyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "depsnap_apply_duration_seconds",
				Help:    "Time taken to translate and apply one batch.",
				Buckets: prometheus.DefBuckets,
			},
		),
		dependencies: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "depsnap_dependencies",
				Help: "Number of dependencies in the current snapshot by project and target.",
			},
			[]string{"project", "target"},
		),
		itemsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "depsnap_handler_items_skipped_total",
				Help: "Number of rule items a handler skipped after a failure.",
			},
			[]string{"provider"},
		),
	}
	if reg != nil {
		for _, col := range []prometheus.Collector{
			c.batchesApplied,
			c.batchesCancelled,
			c.applyDuration,
			c.dependencies,
			c.itemsSkipped,
		} {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// BatchApplied records one applied batch and its duration.
func (c *Collectors) BatchApplied(project string, d time.Duration) {
	if c == nil {
		return
	}
	c.batchesApplied.WithLabelValues(project).Inc()
	c.applyDuration.Observe(d.Seconds())
}

// BatchCancelled records a batch that was cancelled before being applied.
func (c *Collectors) BatchCancelled() {
	if c == nil {
		return
	}
	c.batchesCancelled.Inc()
}

// SetDependencies records the dependency count of one target.
func (c *Collectors) SetDependencies(project, target string, n int) {
	if c == nil {
		return
	}
	c.dependencies.WithLabelValues(project, target).Set(float64(n))
}

// ForgetProject drops the dependency gauges of a closed project.
func (c *Collectors) ForgetProject(project string) {
	if c == nil {
		return
	}
	c.dependencies.DeletePartialMatch(prometheus.Labels{"project": project})
}

// ItemSkipped records a rule item dropped by a failing handler.
func (c *Collectors) ItemSkipped(provider string) {
	if c == nil {
		return
	}
	c.itemsSkipped.WithLabelValues(provider).Inc()
}
