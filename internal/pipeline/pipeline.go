// Package pipeline turns a submitted frame into findings and records them as
// behavior events.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/frame"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/observability/metrics"
)

// Result is the outcome of one Process call. On failure only Success,
// CameraID, Error and Err are set.
type Result struct {
	Success   bool               `json:"success"`
	CameraID  uint               `json:"camera_id"`
	Timestamp time.Time          `json:"timestamp,omitzero"`
	Shape     [3]int             `json:"shape,omitzero"` // rows, columns, channels
	Findings  []behavior.Finding `json:"behaviors,omitempty"`
	Error     string             `json:"error,omitempty"`

	// Err keeps the categorized error so callers can tell a decode failure
	// from a detection failure with errors.IsDecodeError and friends.
	Err error `json:"-"`

	// Raster is the decoded frame, kept for evidence snapshots.
	Raster *frame.Raster `json:"-"`
}

// Pipeline decodes frames and runs the detector once per frame.
type Pipeline struct {
	detector     behavior.Detector
	detectorName string
	maxPixels    int
	now          func() time.Time
	logger       logger.Logger
	metrics      *metrics.PipelineMetrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now as the frame timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the pipeline logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics enables Prometheus recording.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithDetectorName labels detection errors and logs.
func WithDetectorName(name string) Option {
	return func(p *Pipeline) { p.detectorName = name }
}

// WithMaxPixels bounds the decoded frame size. Zero keeps
// frame.DefaultMaxPixels.
func WithMaxPixels(n int) Option {
	return func(p *Pipeline) { p.maxPixels = n }
}

// New builds a pipeline around an injected detector.
func New(detector behavior.Detector, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:     detector,
		detectorName: "detector",
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.NewNopLogger()
	}
	return p
}

// Process decodes payload, runs detection once and stamps every finding with
// a single timestamp. Decode and detection failures are terminal for the call
// and produce no findings.
func (p *Pipeline) Process(ctx context.Context, payload []byte, cameraID uint) Result {
	start := time.Now()
	log := p.logger.WithContext(ctx).With(logger.Uint64("camera_id", uint64(cameraID)))
	if p.metrics != nil {
		p.metrics.ObserveFrameSize(len(payload))
	}

	raster, err := frame.DecodeLimited(payload, p.maxPixels)
	p.observe(metrics.OpDecode, start, err)
	if err != nil {
		log.Warn("frame decode failed", logger.Error(err))
		return p.fail(cameraID, err, start)
	}

	detectStart := time.Now()
	findings, err := p.detect(ctx, raster, cameraID, detectStart)
	p.observe(metrics.OpDetect, detectStart, err)
	if err != nil {
		log.Error("behavior detection failed",
			logger.String("detector", p.detectorName),
			logger.Error(err))
		return p.fail(cameraID, err, start)
	}

	ts := p.now()
	for i := range findings {
		findings[i].Timestamp = ts
		if p.metrics != nil {
			p.metrics.RecordFinding(findings[i].Label, findings[i].Severity.String())
		}
	}

	p.observe(metrics.OpProcess, start, nil)
	log.Debug("frame processed",
		logger.Int("height", raster.Height),
		logger.Int("width", raster.Width),
		logger.Int("findings", len(findings)),
		logger.Duration("elapsed", time.Since(start)))

	return Result{
		Success:   true,
		CameraID:  cameraID,
		Timestamp: ts,
		Shape:     raster.Shape(),
		Findings:  findings,
		Raster:    raster,
	}
}

func (p *Pipeline) detect(ctx context.Context, raster *frame.Raster, cameraID uint, start time.Time) (findings []behavior.Finding, err error) {
	if p.detector == nil {
		return nil, p.detectionError(errors.NewStd("no detector configured"), cameraID, start)
	}

	defer func() {
		if r := recover(); r != nil {
			findings = nil
			err = p.detectionError(fmt.Errorf("detector panicked: %v", r), cameraID, start)
		}
	}()

	findings, err = p.detector.Detect(ctx, raster)
	if err != nil && !errors.IsDetectionError(err) {
		err = p.detectionError(err, cameraID, start)
	}
	return findings, err
}

func (p *Pipeline) detectionError(err error, cameraID uint, start time.Time) error {
	return errors.New(err).
		Component("behavior").
		Category(errors.CategoryDetection).
		Context("detector", p.detectorName).
		CameraContext(cameraID).
		Timing(metrics.OpDetect, time.Since(start)).
		Build()
}

func (p *Pipeline) fail(cameraID uint, err error, start time.Time) Result {
	p.observe(metrics.OpProcess, start, err)
	return Result{
		Success:  false,
		CameraID: cameraID,
		Error:    err.Error(),
		Err:      err,
	}
}

func (p *Pipeline) observe(operation string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordDuration(operation, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordOperation(operation, metrics.StatusError)
		var ee *errors.EnhancedError
		if errors.As(err, &ee) {
			p.metrics.RecordError(operation, ee.GetCategory())
		}
		return
	}
	p.metrics.RecordOperation(operation, metrics.StatusSuccess)
}
