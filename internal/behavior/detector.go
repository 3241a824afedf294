package behavior

import (
	"context"
	"sync"

	"github.com/examwatch/examwatch/internal/frame"
)

// Detector inspects one decoded frame and reports behaviors worth recording.
//
// Detect must not modify the raster. Finding nothing noteworthy is a result,
// not an error; an error means no output could be produced at all, for
// example because a model is unavailable. Implementations are called from
// many goroutines; wrap non-reentrant ones with Serialized.
type Detector interface {
	Detect(ctx context.Context, r *frame.Raster) ([]Finding, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, r *frame.Raster) ([]Finding, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, r *frame.Raster) ([]Finding, error) {
	return f(ctx, r)
}

type serialized struct {
	mu    sync.Mutex
	inner Detector
}

// Serialized returns a Detector that lets one call at a time through to d.
func Serialized(d Detector) Detector {
	return &serialized{inner: d}
}

func (s *serialized) Detect(ctx context.Context, r *frame.Raster) ([]Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Detect(ctx, r)
}
