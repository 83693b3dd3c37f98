package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	m1 := NewMetrics("expass", prometheus.NewRegistry())
	m2 := NewMetrics("expass", prometheus.NewRegistry())

	m1.Backfills.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m1.Backfills))
	assert.Equal(t, float64(0), testutil.ToFloat64(m2.Backfills))
}

func TestObserveRedis(t *testing.T) {
	m := NewMetrics("expass", prometheus.NewRegistry())

	m.ObserveRedis("publish", 0.01, nil)
	m.ObserveRedis("publish", 0.02, errors.New("boom"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RedisOperations.WithLabelValues("publish", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RedisOperations.WithLabelValues("publish", "error")))
}
