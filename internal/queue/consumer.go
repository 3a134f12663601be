package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/nakbase/paper-review-service/internal/config"
	"github.com/nakbase/paper-review-service/internal/observability"
	"github.com/nakbase/paper-review-service/internal/pipeline"
)

// messageReader is the kafka.Reader surface the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TaskHandler processes one task attempt.
type TaskHandler interface {
	Process(ctx context.Context, taskID int64) (pipeline.Outcome, error)
}

// DiagnosisHandler runs a worker self-check in response to a control message.
type DiagnosisHandler interface {
	Run(ctx context.Context)
}

// TaskEnqueuer returns a task to the queue for another attempt.
type TaskEnqueuer interface {
	EnqueueTask(ctx context.Context, taskID int64) error
}

// Consumer drives the dispatch loop: blocking dequeue with a bounded wait,
// message classification and at-least-once acknowledgement. A message is
// committed only after its task reaches a terminal outcome or has been
// re-enqueued for retry.
type Consumer struct {
	reader      messageReader
	handler     TaskHandler
	diagnostics DiagnosisHandler
	enqueuer    TaskEnqueuer
	maxWait     time.Duration
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

// NewConsumer creates a consumer reading from the configured task topic.
func NewConsumer(
	cfg *config.QueueConfig,
	handler TaskHandler,
	diagnostics DiagnosisHandler,
	enqueuer TaskEnqueuer,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(reader, cfg.MaxWait, handler, diagnostics, enqueuer, logger, metrics)
}

// newConsumer wires a consumer around any reader, used directly in tests.
func newConsumer(
	reader messageReader,
	maxWait time.Duration,
	handler TaskHandler,
	diagnostics DiagnosisHandler,
	enqueuer TaskEnqueuer,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Consumer {
	return &Consumer{
		reader:      reader,
		handler:     handler,
		diagnostics: diagnostics,
		enqueuer:    enqueuer,
		maxWait:     maxWait,
		logger:      logger.With().Str("component", "queue_consumer").Logger(),
		metrics:     metrics,
	}
}

// Run consumes messages until the context is cancelled. Each dequeue waits
// at most maxWait before the loop wakes up, logs liveness and blocks again.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info().Dur("max_wait", c.maxWait).Msg("consumer started")

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info().Msg("consumer stopping")
			return err
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.maxWait)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				c.logger.Debug().Msg("no messages within wait window")
				continue
			}
			if ctx.Err() != nil {
				c.logger.Info().Msg("consumer stopping")
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("fetch failed, backing off")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		c.metrics.MessagesReceived.Inc()
		c.dispatch(ctx, msg)
	}
}

// dispatch classifies one message and routes it. Commit semantics: drop and
// control messages commit immediately; task messages commit after a
// terminal outcome or a successful re-enqueue.
func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	classified, err := Classify(msg.Value)
	if err != nil {
		c.logger.Warn().Err(err).Str("payload", truncatePayload(msg.Value)).Msg("dropping unclassifiable message")
		c.metrics.MessagesDropped.WithLabelValues("malformed").Inc()
		c.commit(ctx, msg)
		return
	}

	switch classified.Kind {
	case KindReference:
		c.logger.Info().Int64("task_id", classified.TaskID).Msg("reference-only submission, acknowledging without analysis")
		c.metrics.MessagesDropped.WithLabelValues("reference_only").Inc()
		c.commit(ctx, msg)

	case KindDiagnosis:
		c.logger.Info().Msg("running diagnostics on request")
		if c.diagnostics != nil {
			c.diagnostics.Run(ctx)
		}
		c.commit(ctx, msg)

	case KindTask:
		outcome, err := c.handler.Process(ctx, classified.TaskID)
		if err != nil {
			c.logger.Warn().Err(err).Int64("task_id", classified.TaskID).Msg("task attempt finished with error")
		}

		if outcome == pipeline.OutcomeRetry {
			if err := c.enqueuer.EnqueueTask(ctx, classified.TaskID); err != nil {
				// Leave the message uncommitted; redelivery covers the retry.
				c.logger.Error().Err(err).Int64("task_id", classified.TaskID).Msg("re-enqueue failed, relying on redelivery")
				return
			}
		}
		c.commit(ctx, msg)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error().Err(err).Msg("commit failed")
	}
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// truncatePayload bounds payload excerpts in logs.
func truncatePayload(payload []byte) string {
	const limit = 128
	if len(payload) <= limit {
		return string(payload)
	}
	return string(payload[:limit]) + "..."
}
