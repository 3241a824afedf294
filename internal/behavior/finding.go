// Package behavior defines behavior findings, the Detector contract and the
// reference face-count detector.
package behavior

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/examwatch/examwatch/internal/errors"
)

// Labels emitted by FaceCountDetector.
const (
	LabelNoFace        = "no_face_detected"
	LabelMultipleFaces = "multiple_faces"
)

// ExtraFaceCount is the Extra key carrying the located face count.
const ExtraFaceCount = "face_count"

// Severity is the ordinal urgency of a finding. Higher is more urgent.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// String returns the lowercase name stored in the database.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the four defined levels.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// ParseSeverity parses a severity name, case-insensitively.
func ParseSeverity(name string) (Severity, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for s, n := range severityNames {
		if n == needle {
			return s, nil
		}
	}
	return SeverityUnknown, errors.Newf("unknown severity %q, want low, medium, high or critical", name).
		Component("behavior").
		Category(errors.CategoryValidation).
		Build()
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// BoundingBox is a pixel rectangle with its origin at the top-left corner.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Area returns W*H.
func (b BoundingBox) Area() int { return b.W * b.H }

// Finding is one behavior observed in one frame.
type Finding struct {
	Label       string         `json:"behavior_label"`
	Confidence  float64        `json:"confidence"`
	Severity    Severity       `json:"severity"`
	BoundingBox *BoundingBox   `json:"bbox,omitempty"`
	Extra       map[string]any `json:"extra_data,omitempty"`
	// Timestamp is the frame time, shared by every finding from one frame.
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the invariants a finding must satisfy before it is stored.
func (f *Finding) Validate() error {
	var problems []string

	if strings.TrimSpace(f.Label) == "" {
		problems = append(problems, "behavior label must not be empty")
	}
	if math.IsNaN(f.Confidence) || f.Confidence < 0 || f.Confidence > 1 {
		problems = append(problems, fmt.Sprintf("confidence %v outside [0,1]", f.Confidence))
	}
	if !f.Severity.Valid() {
		problems = append(problems, fmt.Sprintf("invalid severity %d", int(f.Severity)))
	}
	if b := f.BoundingBox; b != nil && (b.X < 0 || b.Y < 0 || b.W < 0 || b.H < 0) {
		problems = append(problems, "bounding box values must be non-negative")
	}
	if f.Extra != nil {
		if _, err := json.Marshal(f.Extra); err != nil {
			problems = append(problems, "extra data is not serializable: "+err.Error())
		}
	}

	if len(problems) == 0 {
		return nil
	}

	return errors.Newf("invalid finding: %s", strings.Join(problems, "; ")).
		Component("behavior").
		Category(errors.CategoryValidation).
		Context("behavior_label", f.Label).
		Build()
}
