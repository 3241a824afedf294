// Package analysis wires settings into running ExamWatch components.
package analysis

import (
	"context"
	"time"

	"github.com/examwatch/examwatch/internal/behavior"
	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/datastore"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/evidence"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/mqtt"
	"github.com/examwatch/examwatch/internal/observability"
	"github.com/examwatch/examwatch/internal/pipeline"
	"github.com/examwatch/examwatch/internal/privacy"
	"github.com/examwatch/examwatch/internal/query"
)

const detectorName = "face_count"

// Components is everything a frame needs on its way from intake to storage.
type Components struct {
	Settings *conf.Settings
	Metrics  *observability.Metrics
	Store    datastore.Interface
	Pipeline *pipeline.Pipeline
	Recorder *pipeline.Recorder
	Query    *query.Service

	mqttClient mqtt.Client
	logger     logger.Logger
}

// NewDetector builds the reference face-count detector from the detection
// settings. Zero values keep the built-in tuning. Detect calls are serialized.
func NewDetector(s *conf.DetectionSettings) behavior.Detector {
	locator := behavior.NewSkinRegionLocator()
	if s.GridSize > 0 {
		locator.GridSize = s.GridSize
	}
	if s.MinRegionCells > 0 {
		locator.MinRegionCells = s.MinRegionCells
	}
	if s.MinAspect > 0 {
		locator.MinAspect = s.MinAspect
	}
	if s.MaxAspect > 0 {
		locator.MaxAspect = s.MaxAspect
	}

	var opts []behavior.FaceCountOption
	if s.NoFaceConfidence > 0 {
		opts = append(opts, behavior.WithNoFaceConfidence(s.NoFaceConfidence))
	}
	if s.MultipleFacesConfidence > 0 {
		opts = append(opts, behavior.WithMultipleFacesConfidence(s.MultipleFacesConfidence))
	}

	return behavior.Serialized(behavior.NewFaceCountDetector(locator, opts...))
}

// NewPipeline builds a pipeline around the configured detector.
func NewPipeline(settings *conf.Settings, m *observability.Metrics, log logger.Logger) *pipeline.Pipeline {
	opts := []pipeline.Option{
		pipeline.WithLogger(log.Module("pipeline")),
		pipeline.WithDetectorName(detectorName),
		pipeline.WithMaxPixels(settings.Detection.MaxPixels),
	}
	if m != nil {
		opts = append(opts, pipeline.WithMetrics(m.Pipeline))
	}
	return pipeline.New(NewDetector(&settings.Detection), opts...)
}

// Build opens the event store and assembles the pipeline, the recorder with
// its enabled hooks, and the query service. The caller owns Close.
func Build(ctx context.Context, settings *conf.Settings, log logger.Logger) (*Components, error) {
	if log == nil {
		log = logger.Global().Module("analysis")
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_metrics").
			Build()
	}

	store := datastore.New(settings, logger.Global().Module("datastore"))
	if store == nil {
		return nil, errors.Newf("no event store enabled, enable output.sqlite or output.mysql").
			Component("analysis").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	if ms, ok := store.(interface{ SetMetrics(*datastore.Metrics) }); ok {
		ms.SetMetrics(m.Datastore)
	}

	c := &Components{
		Settings: settings,
		Metrics:  m,
		Store:    store,
		Pipeline: NewPipeline(settings, m, log),
		logger:   log,
	}

	hooks, err := c.hooks(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Recorder = pipeline.NewRecorder(store, log.Module("recorder"), hooks...)

	c.Query = query.New(store, query.Options{
		CameraCacheTTL: settings.Query.CameraCacheTTL,
		DefaultLimit:   settings.Query.DefaultLimit,
		Logger:         log.Module("query"),
	})

	return c, nil
}

// hooks returns the post-save hooks enabled in settings.
func (c *Components) hooks(ctx context.Context) ([]pipeline.Hook, error) {
	var hooks []pipeline.Hook

	if c.Settings.MQTT.Enabled {
		mlog := logger.Global().Module("mqtt")
		client := mqtt.NewClient(mqtt.ConfigFromSettings(c.Settings), c.Metrics.MQTT, mlog)
		if err := client.Connect(ctx); err != nil {
			// The publisher drops events while disconnected.
			c.logger.Warn("MQTT connect failed, continuing without broker",
				logger.String("broker", privacy.RedactURL(c.Settings.MQTT.Broker)),
				logger.Error(err))
		}
		c.mqttClient = client
		hooks = append(hooks, mqtt.NewPublisher(client, c.Settings.MQTT.Topic, mlog))
	}

	if c.Settings.Evidence.Enabled {
		store, err := evidence.NewMinioStore(&c.Settings.Evidence)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, evidence.NewUploader(store, c.Settings.Evidence.Bucket,
			evidence.WithMetrics(c.Metrics.Integration.For("evidence")),
			evidence.WithLogger(logger.Global().Module("evidence"))))
	}

	for _, h := range hooks {
		c.logger.Info("post-save hook enabled", logger.String("hook", h.Name()))
	}
	return hooks, nil
}

// Close disconnects from the broker and closes the event store.
func (c *Components) Close() {
	if c.mqttClient != nil {
		c.mqttClient.Disconnect()
	}
	start := time.Now()
	if err := c.Store.Close(); err != nil {
		c.logger.Error("failed to close event store", logger.Error(err))
		return
	}
	c.logger.Debug("event store closed", logger.Duration("took", time.Since(start)))
}
