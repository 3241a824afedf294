package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMQTTMetricsRecordsPublishes(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SetConnected(true)
	m.RecordPublish(StatusSuccess, 20*time.Millisecond, 512)
	m.RecordPublish(StatusError, 0, 0)
	m.RecordConnectionEvent(ConnEventLost)
	m.SetConnected(false)

	assert.InDelta(t, 0, testutil.ToFloat64(m.connected), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.publishesTotal.WithLabelValues(StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.publishesTotal.WithLabelValues(StatusError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.connectionEvents.WithLabelValues(ConnEventConnected)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.connectionEvents.WithLabelValues(ConnEventLost)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.payloadBytes))
	assert.InDelta(t, 0.02, histogramSum(t, m.publishDuration), 1e-9, "failed publishes are not timed")
	assert.InDelta(t, 512, histogramSum(t, m.payloadBytes), 0)
}

func histogramSum(t *testing.T, h prometheus.Histogram) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, h.Write(&metric))
	return metric.GetHistogram().GetSampleSum()
}

func TestMQTTMetricsNilReceiver(t *testing.T) {
	t.Parallel()

	var m *MQTTMetrics
	assert.NotPanics(t, func() {
		m.SetConnected(true)
		m.RecordPublish(StatusSuccess, time.Second, 10)
		m.RecordConnectionEvent(ConnEventReconnect)
	})
}
