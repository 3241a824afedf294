// model.go this code defines the data model for the event store
package datastore

import (
	"time"

	"github.com/examwatch/examwatch/internal/behavior"
)

// BehaviorEvent is one persisted finding. Rows are insert-only.
type BehaviorEvent struct {
	ID             uint      `gorm:"primaryKey"`
	CameraID       uint      `gorm:"not null;index:idx_behavior_events_camera_ts,priority:1"`
	RecordingID    *uint     `gorm:"index:idx_behavior_events_recording"`
	BehaviorLabel  string    `gorm:"type:varchar(100);not null;index:idx_behavior_events_label"`
	Confidence     float64   `gorm:"not null"`
	Severity       string    `gorm:"type:varchar(20);not null;index:idx_behavior_events_severity"`
	FrameTimestamp time.Time `gorm:"not null;index:idx_behavior_events_camera_ts,priority:2"`
	FrameIndex     *int
	BBox           *string `gorm:"column:bbox;type:text"`       // JSON, NULL when absent
	ExtraData      *string `gorm:"column:extra_data;type:text"` // JSON, NULL when absent
	CreatedAt      time.Time
}

// TableName pins the table name.
func (BehaviorEvent) TableName() string { return "behavior_events" }

// Camera is a roster entry. The service only reads cameras.
type Camera struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CameraName string `gorm:"type:varchar(100);not null" json:"camera_name"`
	CameraIP   string `gorm:"column:camera_ip;type:varchar(64)" json:"camera_ip"`
	Position   string `gorm:"type:varchar(100)" json:"position"`
	Status     string `gorm:"type:varchar(20);not null;default:offline;index:idx_cameras_status" json:"status"`
}

// TableName pins the table name.
func (Camera) TableName() string { return "cameras" }

// CameraStatusOnline is the only status the roster query returns.
const CameraStatusOnline = "online"

// EventInput is everything SaveEvent needs to write one row.
type EventInput struct {
	Finding        behavior.Finding
	CameraID       uint
	FrameTimestamp time.Time
	RecordingID    *uint
	FrameIndex     *int
}

// Event is a BehaviorEvent with its JSON columns decoded.
type Event struct {
	ID             uint                  `json:"id"`
	CameraID       uint                  `json:"camera_id"`
	RecordingID    *uint                 `json:"recording_id,omitempty"`
	Label          string                `json:"behavior_label"`
	Confidence     float64               `json:"confidence"`
	Severity       behavior.Severity     `json:"severity"`
	FrameTimestamp time.Time             `json:"frame_timestamp"`
	FrameIndex     *int                  `json:"frame_index,omitempty"`
	BoundingBox    *behavior.BoundingBox `json:"bbox,omitempty"`
	Extra          map[string]any        `json:"extra_data,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// Statistics is an aggregate view over the store.
type Statistics struct {
	TotalCameras       int64            `json:"total_cameras"`
	OnlineCameras      int64            `json:"online_cameras"`
	TotalEvents        int64            `json:"total_events"`
	DistinctRecordings int64            `json:"distinct_recordings"`
	EventsBySeverity   map[string]int64 `json:"events_by_severity"`
	EventsByLabel      map[string]int64 `json:"events_by_label"`
	LastEventAt        *time.Time       `json:"last_event_at,omitempty"`
}
