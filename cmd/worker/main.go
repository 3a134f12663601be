// Package main provides the entry point for the paper review worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nakbase/paper-review-service/internal/config"
	"github.com/nakbase/paper-review-service/internal/database"
	"github.com/nakbase/paper-review-service/internal/diagnostics"
	"github.com/nakbase/paper-review-service/internal/llm"
	"github.com/nakbase/paper-review-service/internal/notify"
	"github.com/nakbase/paper-review-service/internal/observability"
	"github.com/nakbase/paper-review-service/internal/parser"
	"github.com/nakbase/paper-review-service/internal/pipeline"
	"github.com/nakbase/paper-review-service/internal/queue"
	"github.com/nakbase/paper-review-service/internal/repository"
	opshttp "github.com/nakbase/paper-review-service/internal/server/http"
	"github.com/nakbase/paper-review-service/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("service", "paper-review-worker").Logger()
	logger.Info().Msg("paper review worker starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// Run migrations on startup when configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		if err := migrator.Up(); err != nil {
			migrator.Close()
			return fmt.Errorf("run migrations: %w", err)
		}
		if err := migrator.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close migrator")
		}
	}

	// Create metrics.
	metrics := observability.NewMetrics()

	// Create repositories.
	taskRepo := repository.NewPgTaskRepository(db)
	paperRepo := repository.NewPgPaperRepository(db)
	feedbackRepo := repository.NewPgFeedbackRepository(db)
	ruleRepo := repository.NewPgRuleRepository(db)

	// Create the vector store.
	store := vectorstore.NewStore(db, cfg.Embedding.Dimension, logger, metrics)

	// Create external service clients.
	parserClient, err := parser.NewClient(parser.Config{
		BaseURL: cfg.Parser.BaseURL,
		Timeout: cfg.Parser.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create parser client: %w", err)
	}

	embedder := llm.NewEmbedder(&cfg.Embedding, logger, metrics)
	generator, err := llm.NewGenerator(&cfg.LLM, logger, metrics)
	if err != nil {
		return fmt.Errorf("create generator: %w", err)
	}

	// Create the notification publisher.
	publisher := notify.NewPublisher(&cfg.Notify, cfg.Queue.Brokers, logger, metrics)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close notification publisher")
		}
	}()

	// Assemble the pipeline.
	differ := pipeline.NewDiffGenerator(cfg.Pipeline.DiffMaxLen)
	assembler := pipeline.NewContextAssembler(paperRepo, ruleRepo, feedbackRepo, store,
		parserClient, differ, &cfg.Pipeline, logger)
	prompts := pipeline.NewPromptBuilder(cfg.Pipeline.ExcerptMaxLen)
	processor := pipeline.NewProcessor(taskRepo, paperRepo, feedbackRepo, store,
		parserClient, embedder, generator, assembler, prompts, publisher,
		&cfg.Pipeline, logger, metrics)

	// Create the diagnostics checker for SYSTEM_DIAGNOSIS messages.
	checker := diagnostics.NewChecker(db, embedder, generator, logger)

	// Create the queue producer and consumer.
	producer := queue.NewProducer(&cfg.Queue, logger)
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close queue producer")
		}
	}()

	consumer := queue.NewConsumer(&cfg.Queue, processor, checker, producer, logger, metrics)
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close queue consumer")
		}
	}()

	// Start the ops HTTP server.
	opsServer := opshttp.NewServer(&cfg.Server, &cfg.Metrics, db, metrics, logger)
	go func() {
		if err := opsServer.Start(); err != nil {
			logger.Error().Err(err).Msg("ops server error")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("ops server shutdown failed")
		}
	}()

	logger.Info().
		Strs("brokers", cfg.Queue.Brokers).
		Str("topic", cfg.Queue.Topic).
		Str("group_id", cfg.Queue.GroupID).
		Msg("starting consumer loop")

	// Block on the consumer until the context is cancelled.
	if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("consumer error: %w", err)
	}

	logger.Info().Msg("worker stopped via signal")
	return nil
}
