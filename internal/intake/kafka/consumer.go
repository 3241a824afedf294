package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"

	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/logger"
)

const retryDelay = 5 * time.Second

// Consumer wraps a sarama consumer group subscribed to the frame topic.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler sarama.ConsumerGroupHandler
	logger  logger.Logger
}

// NewConfig builds the sarama configuration for frame intake.
func NewConfig(settings *conf.KafkaSettings, clientID string) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Return.Errors = false
	if settings.Version != "" {
		v, err := sarama.ParseKafkaVersion(settings.Version)
		if err != nil {
			return nil, errors.New(err).
				Component("intake").
				Category(errors.CategoryConfiguration).
				Context("version", settings.Version).
				Build()
		}
		cfg.Version = v
	}
	return cfg, nil
}

// NewConsumer joins the consumer group. The group only starts fetching when
// Run is called.
func NewConsumer(settings *conf.KafkaSettings, clientID string, handler sarama.ConsumerGroupHandler, log logger.Logger) (*Consumer, error) {
	cfg, err := NewConfig(settings, clientID)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroup(settings.Brokers, settings.GroupID, cfg)
	if err != nil {
		return nil, errors.New(err).
			Component("intake").
			Category(errors.CategoryIntake).
			Context("group_id", settings.GroupID).
			Build()
	}
	return newConsumer(group, settings.Topic, handler, log), nil
}

func newConsumer(group sarama.ConsumerGroup, topic string, handler sarama.ConsumerGroupHandler, log logger.Logger) *Consumer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Consumer{group: group, topic: topic, handler: handler, logger: log}
}

// Run consumes until ctx is cancelled. Consume returns on every rebalance,
// so it is called in a loop; errors are retried after a delay.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Warn("kafka consume failed, retrying",
				logger.String("topic", c.topic),
				logger.Duration("retry_in", retryDelay),
				logger.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryDelay):
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the group.
func (c *Consumer) Close() error {
	return c.group.Close()
}
