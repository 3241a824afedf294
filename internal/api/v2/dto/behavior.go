// Package dto holds the JSON shapes of the v2 API.
package dto

import (
	"time"

	"github.com/samber/lo"

	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/pipeline"
)

// SavedBehavior is one persisted finding in a process-frame response.
type SavedBehavior struct {
	ID            uint                  `json:"id"`
	BehaviorLabel string                `json:"behavior_label"`
	Confidence    float64               `json:"confidence"`
	Severity      behavior.Severity     `json:"severity"`
	BBox          *behavior.BoundingBox `json:"bbox,omitempty"`
	ExtraData     map[string]any        `json:"extra_data,omitempty"`
}

// ProcessFrameRequest is the body of POST /api/process-frame.
type ProcessFrameRequest struct {
	CameraID    uint   `json:"camera_id"`
	Frame       string `json:"frame"`
	RecordingID *uint  `json:"recording_id,omitempty"`
	FrameIndex  *int   `json:"frame_index,omitempty"`
}

// ProcessFrameResponse reports what was detected and saved for one frame.
// Behaviors lists only the findings that were saved.
type ProcessFrameResponse struct {
	Success       bool            `json:"success"`
	CameraID      uint            `json:"camera_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Shape         [3]int          `json:"shape"`
	Behaviors     []SavedBehavior `json:"behaviors"`
	BehaviorCount int             `json:"behavior_count"`
	FailedCount   int             `json:"failed_count"`
}

// NewProcessFrameResponse builds the response for a recorded result.
func NewProcessFrameResponse(result *pipeline.Result, outcome pipeline.Outcome) *ProcessFrameResponse {
	behaviors := lo.Map(outcome.Saved, func(s pipeline.SavedFinding, _ int) SavedBehavior {
		return SavedBehavior{
			ID:            s.EventID,
			BehaviorLabel: s.Finding.Label,
			Confidence:    s.Finding.Confidence,
			Severity:      s.Finding.Severity,
			BBox:          s.Finding.BoundingBox,
			ExtraData:     s.Finding.Extra,
		}
	})
	return &ProcessFrameResponse{
		Success:       true,
		CameraID:      result.CameraID,
		Timestamp:     result.Timestamp,
		Shape:         result.Shape,
		Behaviors:     behaviors,
		BehaviorCount: len(behaviors),
		FailedCount:   len(outcome.Failures),
	}
}

// BehaviorEventRequest is the body of POST /api/behavior-event.
type BehaviorEventRequest struct {
	CameraID       uint                  `json:"camera_id"`
	BehaviorLabel  string                `json:"behavior_label"`
	Confidence     float64               `json:"confidence"`
	Severity       string                `json:"severity"`
	FrameTimestamp string                `json:"frame_timestamp"`
	BBox           *behavior.BoundingBox `json:"bbox,omitempty"`
	RecordingID    *uint                 `json:"recording_id,omitempty"`
	FrameIndex     *int                  `json:"frame_index,omitempty"`
	ExtraData      map[string]any        `json:"extra_data,omitempty"`
}

// BehaviorEventResponse acknowledges a direct insert.
type BehaviorEventResponse struct {
	Success         bool   `json:"success"`
	BehaviorEventID uint   `json:"behavior_event_id"`
	Message         string `json:"message"`
}
