// Package notify publishes task transition events to the notification
// topic. Publishing is strictly fire and forget: a broken notification
// channel must never affect task processing.
package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/nakbase/paper-review-service/internal/config"
	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/observability"
)

// eventWriter is the kafka.Writer surface the publisher needs.
type eventWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits task events. A disabled publisher is a no-op.
type Publisher struct {
	writer         eventWriter
	enabled        bool
	publishTimeout time.Duration
	logger         zerolog.Logger
	metrics        *observability.Metrics
}

// NewPublisher creates an event publisher for the configured topic. The
// notification channel shares the queue's brokers.
func NewPublisher(cfg *config.NotifyConfig, brokers []string, logger zerolog.Logger, metrics *observability.Metrics) *Publisher {
	var writer eventWriter
	if cfg.Enabled {
		writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireNone,
		}
	}
	return &Publisher{
		writer:         writer,
		enabled:        cfg.Enabled,
		publishTimeout: cfg.PublishTimeout,
		logger:         logger.With().Str("component", "notify").Logger(),
		metrics:        metrics,
	}
}

// Publish emits one task event. Failures are logged and counted, never
// returned: consumers of the notification topic are observers only.
func (p *Publisher) Publish(ctx context.Context, event domain.TaskEvent) {
	if !p.enabled || p.writer == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal task event")
		if p.metrics != nil {
			p.metrics.NotificationsFailed.Inc()
		}
		return
	}

	publishCtx := ctx
	if p.publishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.TaskID, 10)),
		Value: payload,
	}
	if err := p.writer.WriteMessages(publishCtx, msg); err != nil {
		p.logger.Warn().Err(err).Int64("task_id", event.TaskID).Msg("failed to publish task event")
		if p.metrics != nil {
			p.metrics.NotificationsFailed.Inc()
		}
		return
	}

	if p.metrics != nil {
		p.metrics.NotificationsPublished.Inc()
	}
}

// Close shuts down the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
