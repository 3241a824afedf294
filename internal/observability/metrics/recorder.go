// Package metrics provides Prometheus collectors for ExamWatch components.
package metrics

// Recorder is the minimal surface components record through, so tests can
// substitute a fake and production code can pass nil-safe collectors.
type Recorder interface {
	// RecordOperation counts an operation outcome, e.g. ("save_event", "success").
	RecordOperation(operation, status string)

	// RecordDuration observes an operation duration in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError counts an error by category, e.g. ("save_event", "database").
	RecordError(operation, errorType string)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(string, string) {}
func (NopRecorder) RecordDuration(string, float64) {}
func (NopRecorder) RecordError(string, string) {}

var _ Recorder = NopRecorder{}
