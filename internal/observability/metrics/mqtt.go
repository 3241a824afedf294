package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Connection event label values.
const (
	ConnEventConnected = "connected"
	ConnEventLost      = "lost"
	ConnEventReconnect = "reconnect"
)

// MQTTMetrics tracks the event publisher's broker connection and publishes.
// All methods are no-ops on a nil receiver.
type MQTTMetrics struct {
	connected        prometheus.Gauge
	lastConnect      prometheus.Gauge
	connectionEvents *prometheus.CounterVec
	publishesTotal   *prometheus.CounterVec
	publishDuration  prometheus.Histogram
	payloadBytes     prometheus.Histogram

	collectors []prometheus.Collector
}

// NewMQTTMetrics creates and registers MQTT metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.connected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "examwatch_mqtt_connected",
		Help: "1 while the event publisher holds a broker connection",
	})

	m.lastConnect = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "examwatch_mqtt_last_connect_timestamp_seconds",
		Help: "Unix time of the last successful broker connection",
	})

	m.connectionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_mqtt_connection_events_total",
			Help: "Broker connection state changes",
		},
		[]string{"event"}, // connected, lost, reconnect
	)

	m.publishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_mqtt_publishes_total",
			Help: "Behavior event publishes by outcome",
		},
		[]string{"status"},
	)

	m.publishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "examwatch_mqtt_publish_duration_seconds",
		Help:    "Time from publish to broker acknowledgement",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	})

	m.payloadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "examwatch_mqtt_payload_bytes",
		Help:    "Size of published event payloads",
		Buckets: prometheus.ExponentialBuckets(BucketStart100B, BucketFactor2, BucketCount10),
	})

	m.collectors = []prometheus.Collector{
		m.connected,
		m.lastConnect,
		m.connectionEvents,
		m.publishesTotal,
		m.publishDuration,
		m.payloadBytes,
	}
}

// SetConnected records the current connection state.
func (m *MQTTMetrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
		m.lastConnect.SetToCurrentTime()
		m.connectionEvents.WithLabelValues(ConnEventConnected).Inc()
		return
	}
	m.connected.Set(0)
}

// RecordConnectionEvent counts a lost connection or reconnect attempt.
func (m *MQTTMetrics) RecordConnectionEvent(event string) {
	if m == nil {
		return
	}
	m.connectionEvents.WithLabelValues(event).Inc()
}

// RecordPublish records one publish. Duration and size are only observed
// for acknowledged publishes.
func (m *MQTTMetrics) RecordPublish(status string, elapsed time.Duration, size int) {
	if m == nil {
		return
	}
	m.publishesTotal.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		m.publishDuration.Observe(elapsed.Seconds())
		m.payloadBytes.Observe(float64(size))
	}
}

// Describe implements prometheus.Collector.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
