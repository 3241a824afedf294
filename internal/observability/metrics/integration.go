package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IntegrationMetrics covers the optional side channels: Kafka frame intake
// and evidence snapshot uploads. The component label is "kafka" or "evidence".
type IntegrationMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	bytesTotal        *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewIntegrationMetrics creates and registers integration metrics.
func NewIntegrationMetrics(registry *prometheus.Registry) (*IntegrationMetrics, error) {
	m := &IntegrationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *IntegrationMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_integration_operations_total",
			Help: "Kafka intake and evidence upload outcomes",
		},
		[]string{"component", "operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "examwatch_integration_operation_duration_seconds",
			Help:    "Time spent per integration operation",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"component", "operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_integration_errors_total",
			Help: "Integration failures by error category",
		},
		[]string{"component", "operation", "error_type"},
	)

	m.bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_integration_bytes_total",
			Help: "Bytes consumed from Kafka or uploaded as evidence",
		},
		[]string{"component"},
	)

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.bytesTotal,
	}
}

// For returns a Recorder bound to one component label.
func (m *IntegrationMetrics) For(component string) *ComponentRecorder {
	return &ComponentRecorder{m: m, component: component}
}

// ComponentRecorder is an IntegrationMetrics view for one component.
type ComponentRecorder struct {
	m         *IntegrationMetrics
	component string
}

// RecordOperation implements Recorder.
func (r *ComponentRecorder) RecordOperation(operation, status string) {
	r.m.operationsTotal.WithLabelValues(r.component, operation, status).Inc()
}

// RecordDuration implements Recorder.
func (r *ComponentRecorder) RecordDuration(operation string, seconds float64) {
	r.m.operationDuration.WithLabelValues(r.component, operation).Observe(seconds)
}

// RecordError implements Recorder.
func (r *ComponentRecorder) RecordError(operation, errorType string) {
	r.m.errorsTotal.WithLabelValues(r.component, operation, errorType).Inc()
}

// AddBytes adds to the byte counter.
func (r *ComponentRecorder) AddBytes(n int) {
	r.m.bytesTotal.WithLabelValues(r.component).Add(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *IntegrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *IntegrationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
