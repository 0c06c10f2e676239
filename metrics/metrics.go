// Package metrics exports rate limiter events to Prometheus.
//
// Example usage:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.New("api", reg)
//	p, err := ratelimiter.NewClientProcessor(opts, counters, policies, ratelimiter.WithMetrics(m))
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics

import (
	"time"

	ratelimiter "github.com/jassus213/go-quota-limiter"
	"github.com/prometheus/client_golang/prometheus"
)

// Decision outcomes used as the "outcome" label.
const (
	OutcomeAllowed     = "allowed"
	OutcomeBlocked     = "blocked"
	OutcomeWhitelisted = "whitelisted"
)

// Collector implements ratelimiter.Metrics with Prometheus collectors.
type Collector struct {
	decisions  *prometheus.CounterVec
	violations *prometheus.CounterVec
	storeErrs  prometheus.Counter
	increments prometheus.Histogram
}

// New creates a Collector and registers it with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Admission decisions by outcome.",
		}, []string{"outcome"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "violations_total",
			Help:      "Rule violations by rule period and monitor mode.",
		}, []string{"period", "monitor"}),
		storeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "store_errors_total",
			Help:      "Failed counter increments.",
		}),
		increments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "increment_duration_seconds",
			Help:      "Latency of counter increments.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
	reg.MustRegister(c.decisions, c.violations, c.storeErrs, c.increments)
	return c
}

// ObserveDecision counts d by outcome.
func (c *Collector) ObserveDecision(d *ratelimiter.Decision) {
	switch {
	case d.Whitelisted:
		c.decisions.WithLabelValues(OutcomeWhitelisted).Inc()
	case d.Allowed:
		c.decisions.WithLabelValues(OutcomeAllowed).Inc()
	default:
		c.decisions.WithLabelValues(OutcomeBlocked).Inc()
	}
}

// ObserveViolation counts a violation of rule.
func (c *Collector) ObserveViolation(rule *ratelimiter.Rule, monitor bool) {
	m := "false"
	if monitor {
		m = "true"
	}
	c.violations.WithLabelValues(rule.Period, m).Inc()
}

// ObserveIncrement records the latency of one increment and counts failures.
func (c *Collector) ObserveIncrement(elapsed time.Duration, err error) {
	c.increments.Observe(elapsed.Seconds())
	if err != nil {
		c.storeErrs.Inc()
	}
}
