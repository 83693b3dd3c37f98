package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Policy engine metrics
	Verdicts             *prometheus.CounterVec
	EnforcementRedirects prometheus.Counter
	Backfills            prometheus.Counter
	ReuseRejections      prometheus.Counter
	PolicyFallbacks      *prometheus.CounterVec
	PasswordResets       prometheus.Counter

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "verdicts_total",
			Help:      "Total number of password expiration verdicts by reason",
		}, []string{"reason"}),
		EnforcementRedirects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "enforcement_redirects_total",
			Help:      "Logins terminated and redirected to password recovery",
		}),
		Backfills: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "timestamp_backfills_total",
			Help:      "Credential timestamps written lazily at login",
		}),
		ReuseRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "reuse_rejections_total",
			Help:      "Password resets rejected for reusing the current password",
		}),
		PolicyFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "fallbacks_total",
			Help:      "Policy reads answered with a default value",
		}, []string{"field"}),
		PasswordResets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "password_resets_total",
			Help:      "Completed password resets",
		}),

		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),
		RedisLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "redis_operation_duration_seconds",
			Help:      "Duration of Redis operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"operation"}),
	}
}

// ObserveRedis records one redis round trip.
func (m *Metrics) ObserveRedis(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RedisOperations.WithLabelValues(operation, status).Inc()
	m.RedisLatency.WithLabelValues(operation).Observe(seconds)
}
