package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks frame decoding, detection and per-finding recording.
type PipelineMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	findingsTotal     *prometheus.CounterVec
	frameSizeBytes    prometheus.Histogram

	collectors []prometheus.Collector
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_pipeline_operations_total",
			Help: "Pipeline stage outcomes",
		},
		[]string{"operation", "status"}, // operation: decode, detect, process
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "examwatch_pipeline_operation_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount15), // 0.1ms to ~3s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_pipeline_errors_total",
			Help: "Pipeline failures by error category",
		},
		[]string{"operation", "error_type"},
	)

	m.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_findings_total",
			Help: "Findings produced by the detector",
		},
		[]string{"behavior_label", "severity"},
	)

	m.frameSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "examwatch_frame_payload_bytes",
		Help:    "Size of submitted frame payloads",
		Buckets: prometheus.ExponentialBuckets(BucketStart100B*10, BucketFactor2, BucketCount12), // 1KB to ~2MB
	})

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.findingsTotal,
		m.frameSizeBytes,
	}
}

// RecordOperation implements Recorder.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordFinding counts one detector finding.
func (m *PipelineMetrics) RecordFinding(label, severity string) {
	m.findingsTotal.WithLabelValues(label, severity).Inc()
}

// ObserveFrameSize records the payload size of one submitted frame.
func (m *PipelineMetrics) ObserveFrameSize(bytes int) {
	m.frameSizeBytes.Observe(float64(bytes))
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
