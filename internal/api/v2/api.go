// internal/api/v2/api.go
package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	mw "github.com/examwatch/examwatch/internal/api/middleware"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/datastore"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/observability/metrics"
	"github.com/examwatch/examwatch/internal/pipeline"
)

// FrameProcessor runs detection on one frame.
type FrameProcessor interface {
	Process(ctx context.Context, payload []byte, cameraID uint) pipeline.Result
}

// FindingRecorder persists the findings of a processed frame.
type FindingRecorder interface {
	Record(ctx context.Context, result *pipeline.Result, meta pipeline.Meta) pipeline.Outcome
}

// EventStore is the write and admin surface of the datastore the API uses.
type EventStore interface {
	SaveEvent(ctx context.Context, in *datastore.EventInput) (uint, error)
	Statistics(ctx context.Context) (*datastore.Statistics, error)
}

// QueryService serves the read endpoints.
type QueryService interface {
	RecentEvents(ctx context.Context, cameraID uint, limit int) ([]datastore.Event, error)
	OnlineCameras(ctx context.Context) ([]datastore.Camera, error)
	DefaultLimit() int
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	processor FrameProcessor
	recorder  FindingRecorder
	store     EventStore
	query     QueryService

	httpMetrics *metrics.HTTPMetrics
	logger      logger.Logger
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithHTTPMetrics enables rate limit accounting on the frame endpoint.
func WithHTTPMetrics(m *metrics.HTTPMetrics) Option {
	return func(c *Controller) { c.httpMetrics = m }
}

// New creates the controller and registers its routes under /api.
func New(e *echo.Echo, settings *conf.Settings, processor FrameProcessor, recorder FindingRecorder,
	store EventStore, query QueryService, opts ...Option) *Controller {
	c := &Controller{
		Echo:      e,
		Settings:  settings,
		processor: processor,
		recorder:  recorder,
		store:     store,
		query:     query,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.NewNopLogger()
	}

	c.Group = e.Group("/api")
	c.initRoutes()
	return c
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	var frameMiddleware []echo.MiddlewareFunc
	if rl := c.Settings.WebServer.RateLimit; rl.Enabled {
		store := mw.NewRateLimiterStore(rl.RPS, rl.Burst, rateLimitExpiry)
		frameMiddleware = append(frameMiddleware, mw.NewRateLimiter(store, c.httpMetrics))
	}

	c.Group.POST("/process-frame", c.ProcessFrame, frameMiddleware...)
	c.Group.POST("/behavior-event", c.RecordBehaviorEvent)
	c.Group.GET("/behavior-events", c.ListBehaviorEvents)
	c.Group.GET("/cameras", c.ListCameras)
	c.Group.GET("/statistics", c.GetStatistics)
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // request trace id, also in X-Request-ID
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int, correlationID string) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// HandleError logs err and writes an ErrorResponse with the given status.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code, mw.TraceID(ctx))

	log := c.logger.WithContext(ctx.Request().Context())
	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		log.Error("API error", fields...)
	} else {
		log.Warn("API request rejected", fields...)
	}

	return ctx.JSON(code, resp)
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.IsValidationError(err), errors.IsDecodeError(err):
		return http.StatusBadRequest
	case errors.IsDetectionError(err):
		// the frame was fine, the detector was not
		return http.StatusServiceUnavailable
	case errors.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
