package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsSingleton(t *testing.T) {
	a := New()
	b := New()
	assert.Same(t, a, b)
}

func TestCountersIncrement(t *testing.T) {
	m := New()

	m.AlertsProcessedTotal.Inc()
	m.AlertsSkippedTotal.WithLabelValues("malformed_record").Inc()
	m.SituationsCreatedTotal.Inc()
	m.CorrelationsFoundTotal.WithLabelValues("burst").Inc()

	var metric dto.Metric
	require.NoError(t, m.AlertsProcessedTotal.Write(&metric))
	assert.GreaterOrEqual(t, metric.GetCounter().GetValue(), float64(1))
}

func TestTimerRecordsObservation(t *testing.T) {
	m := New()

	timer := NewTimer(m.PipelineDuration, "correlation")
	elapsed := timer.Stop()

	assert.GreaterOrEqual(t, elapsed.Seconds(), float64(0))
}
