// Package repository contains PostgreSQL data access for the paper review
// pipeline. Repositories accept a database.DBTX so they can run against the
// pool or inside an enclosing transaction.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nakbase/paper-review-service/internal/domain"
)

// PostgreSQL error codes used for constraint violation detection.
const (
	pgUniqueViolation     = "23505" // unique_violation
	pgForeignKeyViolation = "23503" // foreign_key_violation
)

// translateConstraintError maps constraint violations onto domain sentinels
// so callers can classify them without knowing postgres error codes. Other
// errors pass through unchanged.
func translateConstraintError(err error, entity string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%s (%s): %w", entity, pgErr.ConstraintName, domain.ErrAlreadyExists)
	case pgForeignKeyViolation:
		return fmt.Errorf("%s references a missing row (%s): %w", entity, pgErr.ConstraintName, domain.ErrInvalidInput)
	default:
		return err
	}
}

// TaskRepository manages inference task rows and their state machine.
type TaskRepository interface {
	// GetByID fetches a task. Returns domain.ErrNotFound when absent.
	GetByID(ctx context.Context, id int64) (*domain.InferenceTask, error)

	// UpdateStatus moves a task from one status to another. The update is
	// guarded: it fails with domain.ErrInvalidTransition when the stored
	// status does not match from or the transition is not allowed.
	UpdateStatus(ctx context.Context, id int64, from, to domain.TaskStatus) error

	// IncrementRetryAndReset bumps retry_count, clears the error message and
	// returns the task to pending. It returns the new retry count.
	IncrementRetryAndReset(ctx context.Context, id int64) (int, error)

	// MarkError moves a task to the terminal error status with a message.
	MarkError(ctx context.Context, id int64, message string) error
}

// PaperRepository reads manuscript metadata: papers, versions and files.
type PaperRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Paper, error)
	GetVersion(ctx context.Context, versionID int64) (*domain.Version, error)
	GetLatestVersion(ctx context.Context, paperID int64) (*domain.Version, error)
	GetPrimaryFile(ctx context.Context, versionID int64) (*domain.File, error)

	// UpdateStatus mirrors the task outcome onto the paper row.
	UpdateStatus(ctx context.Context, paperID int64, status domain.PaperStatus) error
}

// FeedbackRepository persists and reads review feedback.
type FeedbackRepository interface {
	// Create inserts feedback for a task. A second insert for the same task
	// is a no-op, which keeps redelivered queue messages idempotent.
	Create(ctx context.Context, feedback *domain.Feedback) error

	// GetLatestByVersion returns the most recent feedback for a version.
	// Returns domain.ErrNotFound when the version has none.
	GetLatestByVersion(ctx context.Context, versionID int64) (*domain.Feedback, error)
}

// RuleMatch pairs a conference rule with its similarity to a query vector.
type RuleMatch struct {
	Rule       domain.ConferenceRule
	Similarity float64
}

// RuleRepository reads conference format rules.
type RuleRepository interface {
	// GetByID fetches a rule. Returns domain.ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (*domain.ConferenceRule, error)

	// FindSimilar returns the rules closest to the query embedding, most
	// similar first.
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]RuleMatch, error)
}
