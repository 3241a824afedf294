package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
	"github.com/examwatch/examwatch/internal/pipeline"
)

// Publisher fans saved behavior events out to <topic>/<camera_id>.
// It is a pipeline.Hook; publish failures never affect what was saved.
type Publisher struct {
	client Client
	topic  string
	logger logger.Logger
}

// NewPublisher returns a Publisher writing under topic.
func NewPublisher(client Client, topic string, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Publisher{
		client: client,
		topic:  strings.TrimSuffix(topic, "/"),
		logger: log,
	}
}

// Name implements pipeline.Hook.
func (p *Publisher) Name() string { return "mqtt" }

// TopicFor returns the topic events for cameraID are published on.
func (p *Publisher) TopicFor(cameraID uint) string {
	return fmt.Sprintf("%s/%d", p.topic, cameraID)
}

// AfterRecord publishes one message per saved finding.
func (p *Publisher) AfterRecord(ctx context.Context, result *pipeline.Result, meta pipeline.Meta, saved []pipeline.SavedFinding) error {
	if !p.client.IsConnected() {
		return errors.Newf("mqtt client not connected, dropping %d events", len(saved)).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	topic := p.TopicFor(result.CameraID)
	var errs []error
	for _, s := range saved {
		payload, err := json.Marshal(NewBehaviorEventDTO(result, meta, s))
		if err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", s.EventID, err))
			continue
		}
		if err := p.client.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, fmt.Errorf("event %d: %w", s.EventID, err))
			continue
		}
		p.logger.Debug("behavior event published",
			logger.String("topic", topic),
			logger.Uint64("event_id", uint64(s.EventID)))
	}
	return errors.Join(errs...)
}

var _ pipeline.Hook = (*Publisher)(nil)
