package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/observability/metrics"
	"github.com/examwatch/examwatch/internal/pipeline"
)

// FrameProcessor runs detection on one frame.
type FrameProcessor interface {
	Process(ctx context.Context, payload []byte, cameraID uint) pipeline.Result
}

// ResultRecorder persists the findings of one processed frame.
type ResultRecorder interface {
	Record(ctx context.Context, result *pipeline.Result, meta pipeline.Meta) pipeline.Outcome
}

// Handler implements sarama.ConsumerGroupHandler. Every message is marked
// once handled, whatever the outcome, so a bad frame never stalls its
// partition.
type Handler struct {
	processor FrameProcessor
	recorder  ResultRecorder
	metrics   metrics.Recorder
	logger    logger.Logger
}

// NewHandler creates a handler. rec may be nil.
func NewHandler(processor FrameProcessor, recorder ResultRecorder, rec metrics.Recorder, log logger.Logger) *Handler {
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler{processor: processor, recorder: recorder, metrics: rec, logger: log}
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (h *Handler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info("kafka session started",
		logger.String("member_id", sess.MemberID()),
		logger.Int("generation", int(sess.GenerationID())))
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim handles messages of one partition until the claim closes or
// the session ends.
func (h *Handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.Handle(sess.Context(), msg)
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

// Handle processes and records one message. It returns the outcome for tests
// and logging; failures are already logged.
func (h *Handler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) (pipeline.Result, pipeline.Outcome) {
	start := time.Now()
	log := h.logger.WithContext(ctx).With(
		logger.String("topic", msg.Topic),
		logger.Int("partition", int(msg.Partition)),
		logger.Int64("offset", msg.Offset))

	fm, err := ParseFrameMessage(msg.Value)
	if err != nil {
		h.fail(start, err)
		log.Warn("discarding malformed frame message", logger.Error(err))
		return pipeline.Result{Err: err, Error: err.Error()}, pipeline.Outcome{}
	}

	result := h.processor.Process(ctx, []byte(fm.Frame), fm.CameraID)
	if !result.Success {
		h.fail(start, result.Err)
		log.Warn("frame processing failed",
			logger.Uint64("camera_id", uint64(fm.CameraID)),
			logger.String("error", result.Error))
		return result, pipeline.Outcome{}
	}

	outcome := h.recorder.Record(ctx, &result, fm.Meta())
	h.metrics.RecordDuration(metrics.OpConsume, time.Since(start).Seconds())
	h.metrics.RecordOperation(metrics.OpConsume, metrics.StatusSuccess)

	log.Debug("frame consumed",
		logger.Uint64("camera_id", uint64(fm.CameraID)),
		logger.Int("findings", len(result.Findings)),
		logger.Int("saved", len(outcome.Saved)),
		logger.Int("failed", len(outcome.Failures)))
	return result, outcome
}

func (h *Handler) fail(start time.Time, err error) {
	h.metrics.RecordDuration(metrics.OpConsume, time.Since(start).Seconds())
	h.metrics.RecordOperation(metrics.OpConsume, metrics.StatusError)
	h.metrics.RecordError(metrics.OpConsume, categoryOf(err))
}

func categoryOf(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}

var _ sarama.ConsumerGroupHandler = (*Handler)(nil)
