// Package metrics exposes validation counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rendis/flowcheck/internal/validation"
	"github.com/rendis/flowcheck/pkg/schema"
)

// Collector records validation outcomes on its own registry.
type Collector struct {
	registry *prometheus.Registry

	validations *prometheus.CounterVec
	diagnostics *prometheus.CounterVec
	duration    prometheus.Histogram
	deepRuns    *prometheus.CounterVec
	unverified  prometheus.Counter
}

// New creates a Collector with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowcheck_validations_total",
				Help: "Total workflow validations by outcome",
			},
			[]string{"valid"},
		),
		diagnostics: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowcheck_diagnostics_total",
				Help: "Total diagnostics reported by kind and severity",
			},
			[]string{"kind", "severity"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flowcheck_validation_duration_seconds",
				Help:    "Time spent validating one workflow definition",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		deepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowcheck_deep_verifications_total",
				Help: "Total deep verifications by outcome",
			},
			[]string{"outcome"},
		),
		unverified: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "flowcheck_unverified_steps_total",
				Help: "Steps deep verification could not check before its deadline",
			},
		),
	}
}

// ObserveValidation implements validation.Observer.
func (c *Collector) ObserveValidation(result *schema.Result, elapsed time.Duration) {
	c.validations.WithLabelValues(strconv.FormatBool(result.Valid())).Inc()
	for _, d := range result.Diagnostics {
		c.diagnostics.WithLabelValues(d.Kind.String(), string(d.Severity)).Inc()
	}
	c.duration.Observe(elapsed.Seconds())
}

// ObserveVerification records a deep verification outcome.
func (c *Collector) ObserveVerification(result *validation.VerificationResult) {
	outcome := "passed"
	switch {
	case !result.Complete():
		outcome = "incomplete"
	case len(result.Diagnostics) > 0:
		outcome = "failed"
	}
	c.deepRuns.WithLabelValues(outcome).Inc()
	c.unverified.Add(float64(len(result.Unverified)))
	for _, d := range result.Diagnostics {
		c.diagnostics.WithLabelValues(d.Kind.String(), string(d.Severity)).Inc()
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

var _ validation.Observer = (*Collector)(nil)
