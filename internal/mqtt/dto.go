// Package mqtt provides MQTT client functionality and data transfer objects.
package mqtt

import (
	"time"

	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/pipeline"
)

// BehaviorEventDTO is the JSON body published for each saved event.
//
// Field names are part of the consumer contract; add fields, do not rename.
type BehaviorEventDTO struct {
	EventID        uint                  `json:"behavior_event_id"`
	CameraID       uint                  `json:"camera_id"`
	RecordingID    *uint                 `json:"recording_id,omitempty"`
	FrameIndex     *int                  `json:"frame_index,omitempty"`
	BehaviorLabel  string                `json:"behavior_label"`
	Confidence     float64               `json:"confidence"`
	Severity       string                `json:"severity"`
	FrameTimestamp string                `json:"frame_timestamp"` // RFC 3339, UTC
	BBox           *behavior.BoundingBox `json:"bbox,omitempty"`
	ExtraData      map[string]any        `json:"extra_data,omitempty"`
}

// NewBehaviorEventDTO builds the payload for one saved finding.
func NewBehaviorEventDTO(result *pipeline.Result, meta pipeline.Meta, saved pipeline.SavedFinding) *BehaviorEventDTO {
	ts := saved.Finding.Timestamp
	if ts.IsZero() {
		ts = result.Timestamp
	}
	return &BehaviorEventDTO{
		EventID:        saved.EventID,
		CameraID:       result.CameraID,
		RecordingID:    meta.RecordingID,
		FrameIndex:     meta.FrameIndex,
		BehaviorLabel:  saved.Finding.Label,
		Confidence:     saved.Finding.Confidence,
		Severity:       saved.Finding.Severity.String(),
		FrameTimestamp: ts.UTC().Format(time.RFC3339Nano),
		BBox:           saved.Finding.BoundingBox,
		ExtraData:      saved.Finding.Extra,
	}
}
