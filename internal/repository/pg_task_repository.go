package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/nakbase/paper-review-service/internal/database"
	"github.com/nakbase/paper-review-service/internal/domain"
)

// Compile-time interface verification.
var _ TaskRepository = (*PgTaskRepository)(nil)

// PgTaskRepository is a PostgreSQL implementation of TaskRepository.
type PgTaskRepository struct {
	db database.DBTX
}

// NewPgTaskRepository creates a new PostgreSQL task repository.
func NewPgTaskRepository(db database.DBTX) *PgTaskRepository {
	return &PgTaskRepository{db: db}
}

const taskColumns = `
	id, version_id, conference_rule_id, status, retry_count,
	error_message, started_at, completed_at, created_at, updated_at`

// GetByID fetches a task by its primary key.
func (r *PgTaskRepository) GetByID(ctx context.Context, id int64) (*domain.InferenceTask, error) {
	query := `SELECT` + taskColumns + ` FROM inference_tasks WHERE id = $1`

	var task domain.InferenceTask
	var status string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&task.ID, &task.VersionID, &task.ConferenceRuleID, &status, &task.RetryCount,
		&task.ErrorMessage, &task.StartedAt, &task.CompletedAt, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("inference task", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}

	task.Status = domain.TaskStatus(status)
	return &task, nil
}

// UpdateStatus moves a task from one status to another with a guarded update.
// Entering parsing stamps started_at once; reaching a terminal status stamps
// completed_at.
func (r *PgTaskRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.TaskStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("task %d: %s -> %s: %w", id, from, to, domain.ErrInvalidTransition)
	}

	query := `
		UPDATE inference_tasks
		SET status = $1,
		    started_at = CASE WHEN $1 = 'parsing' THEN COALESCE(started_at, now()) ELSE started_at END,
		    completed_at = CASE WHEN $1 IN ('completed', 'error') THEN now() ELSE completed_at END,
		    updated_at = now()
		WHERE id = $2 AND status = $3`

	tag, err := r.db.Exec(ctx, query, string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update task %d status: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		// Either the row is gone or another worker changed the status first.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("task %d: expected status %s: %w", id, from, domain.ErrInvalidTransition)
	}

	return nil
}

// IncrementRetryAndReset bumps the retry counter, clears the error message
// and returns the task to pending so it can be dispatched again.
func (r *PgTaskRepository) IncrementRetryAndReset(ctx context.Context, id int64) (int, error) {
	query := `
		UPDATE inference_tasks
		SET status = 'pending',
		    retry_count = retry_count + 1,
		    error_message = NULL,
		    updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'error')
		RETURNING retry_count`

	var retryCount int
	err := r.db.QueryRow(ctx, query, id).Scan(&retryCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("task %d cannot be reset: %w", id, domain.ErrInvalidTransition)
		}
		return 0, fmt.Errorf("failed to reset task %d: %w", id, err)
	}

	return retryCount, nil
}

// MarkError moves a task to the terminal error status.
func (r *PgTaskRepository) MarkError(ctx context.Context, id int64, message string) error {
	query := `
		UPDATE inference_tasks
		SET status = 'error',
		    error_message = $1,
		    completed_at = now(),
		    updated_at = now()
		WHERE id = $2 AND status NOT IN ('completed', 'error')`

	tag, err := r.db.Exec(ctx, query, message, id)
	if err != nil {
		return fmt.Errorf("failed to mark task %d as errored: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("task %d already terminal: %w", id, domain.ErrInvalidTransition)
	}

	return nil
}
