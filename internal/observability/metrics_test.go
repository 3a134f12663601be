package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersCollectors(t *testing.T) {
	m := NewMetrics()
	require.NotNil(t, m.Registry())

	m.TasksStarted.Inc()
	m.TasksCompleted.Inc()
	m.TasksRetried.Add(2)
	m.MessagesDropped.WithLabelValues("malformed").Inc()
	m.PhaseDuration.WithLabelValues("parsing").Observe(1.5)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TasksCompleted))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TasksRetried))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesDropped.WithLabelValues("malformed")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	assert.Contains(t, byName, "review_tasks_started_total")
	assert.Contains(t, byName, "review_queue_messages_dropped_total")

	phases, ok := byName["review_phase_duration_seconds"]
	require.True(t, ok)
	assert.Equal(t, dto.MetricType_HISTOGRAM, phases.GetType())
}

func TestMetricsAreIsolatedPerInstance(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.TasksStarted.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.TasksStarted))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.TasksStarted))
}
