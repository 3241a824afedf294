package observability

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examwatch/examwatch/internal/observability/metrics"
)

// NewMetrics uses a private registry, so concurrent calls must not collide.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	const numGoroutines = 20

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.registry)
			assert.NotNil(t, m.Pipeline)
			assert.NotNil(t, m.Datastore)
			assert.NotNil(t, m.HTTP)
			assert.NotNil(t, m.MQTT)
			assert.NotNil(t, m.Integration)
		})
	}
	wg.Wait()
}

func TestRecordersCount(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	var rec metrics.Recorder = m.Datastore
	rec.RecordOperation(metrics.OpSaveEvent, metrics.StatusSuccess)
	rec.RecordOperation(metrics.OpSaveEvent, metrics.StatusSuccess)
	rec.RecordError(metrics.OpSaveEvent, "validation")
	m.Datastore.RecordEventSaved("no_face_detected", "high")

	m.Pipeline.RecordFinding("multiple_faces", "critical")
	m.Integration.For("kafka").RecordOperation(metrics.OpConsume, metrics.StatusError)

	assert.Equal(t, 1, testutil.CollectAndCount(m.Datastore, "examwatch_datastore_operations_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Datastore, "examwatch_datastore_operation_errors_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Pipeline, "examwatch_findings_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Integration, "examwatch_integration_operations_total"))
}

func TestHandlerExposesRegistry(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.HTTP.RecordRequest(http.MethodGet, "/api/cameras", http.StatusOK, 0.01, 120)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `examwatch_http_requests_total{method="GET",path="/api/cameras",status_code="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
