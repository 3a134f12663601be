// Package diagnostics implements the worker self-check triggered by
// SYSTEM_DIAGNOSIS control messages.
package diagnostics

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nakbase/paper-review-service/internal/llm"
)

// checkTimeout bounds each individual probe.
const checkTimeout = 10 * time.Second

// Pinger is the database liveness surface the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker probes the worker's dependencies and logs the results. It never
// fails the worker: diagnostics are informational.
type Checker struct {
	db        Pinger
	embedder  llm.Embedder
	generator llm.Generator
	logger    zerolog.Logger
}

// NewChecker creates a diagnostics checker.
func NewChecker(db Pinger, embedder llm.Embedder, generator llm.Generator, logger zerolog.Logger) *Checker {
	return &Checker{
		db:        db,
		embedder:  embedder,
		generator: generator,
		logger:    logger.With().Str("component", "diagnostics").Logger(),
	}
}

// Run probes the database, the embedding backend and the generation backend
// in turn, logging one result line per dependency.
func (c *Checker) Run(ctx context.Context) {
	c.probe(ctx, "database", func(ctx context.Context) error {
		return c.db.Ping(ctx)
	})

	c.probe(ctx, "embedding_backend", func(ctx context.Context) error {
		_, err := c.embedder.Embed(ctx, "diagnostic probe")
		return err
	})

	c.probe(ctx, "generation_backend", func(ctx context.Context) error {
		_, err := c.generator.Generate(ctx, "Reply with the single word: ok")
		return err
	})
}

func (c *Checker) probe(ctx context.Context, name string, fn func(ctx context.Context) error) {
	probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(probeCtx); err != nil {
		c.logger.Error().Err(err).Str("check", name).Dur("elapsed", time.Since(start)).Msg("diagnostic check failed")
		return
	}
	c.logger.Info().Str("check", name).Dur("elapsed", time.Since(start)).Msg("diagnostic check passed")
}
