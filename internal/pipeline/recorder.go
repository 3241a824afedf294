package pipeline

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/datastore"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
)

// EventSaver is the part of the event store the recorder writes through.
type EventSaver interface {
	SaveEvent(ctx context.Context, in *datastore.EventInput) (uint, error)
}

// Meta carries the optional recording context of a frame.
type Meta struct {
	RecordingID *uint `json:"recording_id,omitempty"`
	FrameIndex  *int  `json:"frame_index,omitempty"`
}

// SavedFinding is a finding that was persisted as event EventID.
type SavedFinding struct {
	EventID uint             `json:"id"`
	Finding behavior.Finding `json:"finding"`
}

// FindingFailure is a finding that could not be persisted.
type FindingFailure struct {
	Index   int              `json:"index"`
	Finding behavior.Finding `json:"finding"`
	Err     error            `json:"-"`
}

// Outcome is the per-finding result of Record.
type Outcome struct {
	Saved    []SavedFinding   `json:"saved"`
	Failures []FindingFailure `json:"failures"`
}

// EventIDs returns the ids of the saved events in save order.
func (o Outcome) EventIDs() []uint {
	return lo.Map(o.Saved, func(s SavedFinding, _ int) uint { return s.EventID })
}

// Hook runs after the findings of one frame have been recorded. Hooks are
// best-effort and cannot change the outcome.
type Hook interface {
	Name() string
	AfterRecord(ctx context.Context, result *Result, meta Meta, saved []SavedFinding) error
}

// Recorder persists findings one at a time so a failed write never blocks
// or undoes its siblings.
type Recorder struct {
	store  EventSaver
	hooks  []Hook
	logger logger.Logger
}

// NewRecorder creates a recorder over store.
func NewRecorder(store EventSaver, log logger.Logger, hooks ...Hook) *Recorder {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Recorder{
		store:  store,
		logger: log,
		hooks:  lo.Filter(hooks, func(h Hook, _ int) bool { return h != nil }),
	}
}

// Record saves every finding of a successful result independently. Failures
// are logged and collected; the loop always continues.
func (r *Recorder) Record(ctx context.Context, result *Result, meta Meta) Outcome {
	var out Outcome
	if result == nil || !result.Success || len(result.Findings) == 0 {
		return out
	}

	log := r.logger.WithContext(ctx).With(logger.Uint64("camera_id", uint64(result.CameraID)))

	for i, f := range result.Findings {
		ts := f.Timestamp
		if ts.IsZero() {
			ts = result.Timestamp
		}

		id, err := r.save(ctx, &datastore.EventInput{
			Finding:        f,
			CameraID:       result.CameraID,
			FrameTimestamp: ts,
			RecordingID:    meta.RecordingID,
			FrameIndex:     meta.FrameIndex,
		})
		if err != nil {
			log.Warn("failed to record finding",
				logger.Int("index", i),
				logger.String("behavior_label", f.Label),
				logger.String("error_category", errorCategory(err)),
				logger.Error(err))
			out.Failures = append(out.Failures, FindingFailure{Index: i, Finding: f, Err: err})
			continue
		}
		out.Saved = append(out.Saved, SavedFinding{EventID: id, Finding: f})
	}

	if len(out.Failures) > 0 {
		log.Info("frame recorded with failures",
			logger.Int("saved", len(out.Saved)),
			logger.Int("failed", len(out.Failures)))
	}

	if len(out.Saved) > 0 {
		r.runHooks(ctx, result, meta, out.Saved)
	}
	return out
}

// save shields the loop from a panicking store.
func (r *Recorder) save(ctx context.Context, in *datastore.EventInput) (id uint, err error) {
	if r.store == nil {
		return 0, errors.Newf("no event store configured").
			Component("pipeline").
			Category(errors.CategoryDatabase).
			Build()
	}
	defer func() {
		if p := recover(); p != nil {
			id = 0
			err = errors.Newf("event store panicked: %v", p).
				Component("pipeline").
				Category(errors.CategoryDatabase).
				CameraContext(in.CameraID).
				Build()
		}
	}()
	return r.store.SaveEvent(ctx, in)
}

func (r *Recorder) runHooks(ctx context.Context, result *Result, meta Meta, saved []SavedFinding) {
	for _, h := range r.hooks {
		start := time.Now()
		if err := h.AfterRecord(ctx, result, meta, saved); err != nil {
			r.logger.WithContext(ctx).Warn("post-record hook failed",
				logger.String("hook", h.Name()),
				logger.Uint64("camera_id", uint64(result.CameraID)),
				logger.Error(err))
			continue
		}
		r.logger.WithContext(ctx).Trace("post-record hook done",
			logger.String("hook", h.Name()),
			logger.Duration("elapsed", time.Since(start)))
	}
}

func errorCategory(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}
