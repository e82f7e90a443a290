package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordRefresh("cache")
	r.RecordRefresh("cache")
	r.RecordSignals("final", 7)
	r.RecordError("fetch")
	r.RecordStatusTransition("completed")
	r.RecordLatency("fetch_signals", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.refreshes.WithLabelValues("cache")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.signals.WithLabelValues("final")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}
