package behavior

import (
	"context"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/frame"
)

// Default confidences attached to face-count findings.
const (
	DefaultNoFaceConfidence        = 0.95
	DefaultMultipleFacesConfidence = 0.90
)

// FaceLocator finds face regions in a frame.
type FaceLocator interface {
	Locate(ctx context.Context, r *frame.Raster) ([]BoundingBox, error)
}

// FaceCountDetector turns a face count into findings: none when exactly one
// face is visible, no_face_detected (high) for zero faces and multiple_faces
// (critical) for two or more.
type FaceCountDetector struct {
	locator                 FaceLocator
	noFaceConfidence        float64
	multipleFacesConfidence float64
}

// FaceCountOption configures a FaceCountDetector.
type FaceCountOption func(*FaceCountDetector)

// WithNoFaceConfidence sets the confidence reported for no_face_detected.
func WithNoFaceConfidence(c float64) FaceCountOption {
	return func(d *FaceCountDetector) { d.noFaceConfidence = c }
}

// WithMultipleFacesConfidence sets the confidence reported for multiple_faces.
func WithMultipleFacesConfidence(c float64) FaceCountOption {
	return func(d *FaceCountDetector) { d.multipleFacesConfidence = c }
}

// NewFaceCountDetector builds the detector over locator.
func NewFaceCountDetector(locator FaceLocator, opts ...FaceCountOption) *FaceCountDetector {
	d := &FaceCountDetector{
		locator:                 locator,
		noFaceConfidence:        DefaultNoFaceConfidence,
		multipleFacesConfidence: DefaultMultipleFacesConfidence,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect implements Detector.
func (d *FaceCountDetector) Detect(ctx context.Context, r *frame.Raster) ([]Finding, error) {
	if d.locator == nil {
		return nil, DetectionError(errors.NewStd("no face locator configured"), "face_count")
	}
	if r == nil || len(r.Pix) == 0 {
		return nil, DetectionError(errors.NewStd("no raster to inspect"), "face_count")
	}

	faces, err := d.locator.Locate(ctx, r)
	if err != nil {
		return nil, DetectionError(err, "face_count")
	}

	switch n := len(faces); {
	case n == 0:
		return []Finding{{
			Label:      LabelNoFace,
			Confidence: d.noFaceConfidence,
			Severity:   SeverityHigh,
			Extra:      map[string]any{ExtraFaceCount: 0},
		}}, nil
	case n > 1:
		return []Finding{{
			Label:      LabelMultipleFaces,
			Confidence: d.multipleFacesConfidence,
			Severity:   SeverityCritical,
			Extra:      map[string]any{ExtraFaceCount: n},
		}}, nil
	default:
		return nil, nil
	}
}
