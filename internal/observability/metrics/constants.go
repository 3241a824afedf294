// Package metrics provides constants used across metric definitions.
package metrics

// Operation label values.
const (
	// OpDecode is frame decoding.
	OpDecode = "decode"
	// OpDetect is one detector run.
	OpDetect = "detect"
	// OpProcess is a full decode and detect call.
	OpProcess = "process"
	// OpSaveEvent is a single behavior event insert.
	OpSaveEvent = "save_event"
	// OpRecentEvents is the newest-first event query.
	OpRecentEvents = "recent_events"
	// OpOnlineCameras is the online roster query.
	OpOnlineCameras = "online_cameras"
	// OpStatistics is the aggregate statistics query.
	OpStatistics = "statistics"
	// OpPing is the health probe.
	OpPing = "ping"
	// OpUpload is an evidence snapshot upload.
	OpUpload = "upload"
	// OpConsume is one intake message.
	OpConsume = "consume"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Table label values.
const (
	TableBehaviorEvents = "behavior_events"
	TableCameras        = "cameras"
)

// Histogram bucket configuration.
const (
	// BucketStart1ms starts histograms at 1ms.
	BucketStart1ms = 0.001
	// BucketStart100us starts histograms at 0.1ms.
	BucketStart100us = 0.0001
	// BucketStart100B starts size histograms at 100 bytes.
	BucketStart100B = 100

	BucketFactor2  = 2
	BucketFactor10 = 10

	BucketCount6  = 6
	BucketCount10 = 10
	BucketCount12 = 12
	BucketCount15 = 15
)
