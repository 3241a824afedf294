package api

import "time"

// Idle per-client rate limit buckets are forgotten after this long.
const rateLimitExpiry = 3 * time.Minute

const (
	defaultSeverity = "medium"
	cameraIDParam   = "camera_id"
	limitParam      = "limit"
)

// Layouts accepted for frame_timestamp on direct inserts. Naive timestamps
// are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}
