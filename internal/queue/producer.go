package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/nakbase/paper-review-service/internal/config"
)

// messageWriter is the kafka.Writer surface the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes task references onto the inference task topic. The
// dispatcher uses it to return retryable tasks to the queue.
type Producer struct {
	writer messageWriter
	logger zerolog.Logger
}

// NewProducer creates a task producer for the configured topic.
func NewProducer(cfg *config.QueueConfig, logger zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{
		writer: writer,
		logger: logger.With().Str("component", "queue_producer").Logger(),
	}
}

// EnqueueTask publishes a task reference. The task ID is used as the
// message key so retries of the same task stay ordered.
func (p *Producer) EnqueueTask(ctx context.Context, taskID int64) error {
	payload, err := json.Marshal(taskPayload{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(taskID, 10)),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue task %d: %w", taskID, err)
	}

	p.logger.Debug().Int64("task_id", taskID).Msg("task enqueued")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
