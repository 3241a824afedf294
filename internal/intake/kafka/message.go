// Package kafka consumes frames from a Kafka topic and runs each one through
// the same process and record path as the HTTP frame endpoint.
package kafka

import (
	"encoding/json"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/pipeline"
)

// FrameMessage is the JSON value of one intake record. Frame holds base64
// image data, optionally behind a data URI header.
type FrameMessage struct {
	CameraID    uint   `json:"camera_id"`
	Frame       string `json:"frame"`
	RecordingID *uint  `json:"recording_id,omitempty"`
	FrameIndex  *int   `json:"frame_index,omitempty"`
}

// Meta returns the recording context carried by the message.
func (m *FrameMessage) Meta() pipeline.Meta {
	return pipeline.Meta{RecordingID: m.RecordingID, FrameIndex: m.FrameIndex}
}

// ParseFrameMessage decodes and validates a record value.
func ParseFrameMessage(value []byte) (*FrameMessage, error) {
	var msg FrameMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, errors.New(err).
			Component("intake").
			Category(errors.CategoryValidation).
			Context("operation", "unmarshal_message").
			Build()
	}
	if msg.CameraID == 0 {
		return nil, errors.Newf("camera_id is required").
			Component("intake").
			Category(errors.CategoryValidation).
			Build()
	}
	if msg.Frame == "" {
		return nil, errors.Newf("frame is required").
			Component("intake").
			Category(errors.CategoryValidation).
			CameraContext(msg.CameraID).
			Build()
	}
	return &msg, nil
}
