package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/nakbase/paper-review-service/internal/database"
	"github.com/nakbase/paper-review-service/internal/domain"
)

// Compile-time interface verification.
var _ FeedbackRepository = (*PgFeedbackRepository)(nil)

// PgFeedbackRepository is a PostgreSQL implementation of FeedbackRepository.
type PgFeedbackRepository struct {
	db database.DBTX
}

// NewPgFeedbackRepository creates a new PostgreSQL feedback repository.
func NewPgFeedbackRepository(db database.DBTX) *PgFeedbackRepository {
	return &PgFeedbackRepository{db: db}
}

// Create inserts feedback for a task. The unique constraint on task_id makes
// a second insert for the same task a no-op, so redelivered queue messages
// do not duplicate feedback.
func (r *PgFeedbackRepository) Create(ctx context.Context, feedback *domain.Feedback) error {
	if feedback == nil {
		return domain.NewValidationError("feedback", "feedback cannot be nil")
	}
	if feedback.VersionID == 0 {
		return domain.NewValidationError("version_id", "version ID is required")
	}

	commentsJSON, err := json.Marshal(feedback.Comments)
	if err != nil {
		return fmt.Errorf("failed to marshal comments: %w", err)
	}

	query := `
		INSERT INTO feedbacks (
			version_id, task_id, overall_score, format_score, logic_score,
			summary, comments
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id) DO NOTHING
		RETURNING id, created_at`

	err = r.db.QueryRow(ctx, query,
		feedback.VersionID, feedback.TaskID,
		feedback.Scores.Overall, feedback.Scores.Format, feedback.Scores.Logic,
		feedback.Summary, commentsJSON,
	).Scan(&feedback.ID, &feedback.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict path: feedback for this task already exists.
			return nil
		}
		return fmt.Errorf("failed to create feedback: %w", translateConstraintError(err, "feedback"))
	}

	return nil
}

// GetLatestByVersion returns the most recent feedback stored for a version.
func (r *PgFeedbackRepository) GetLatestByVersion(ctx context.Context, versionID int64) (*domain.Feedback, error) {
	query := `
		SELECT id, version_id, task_id, overall_score, format_score, logic_score,
		       summary, comments, created_at
		FROM feedbacks
		WHERE version_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	var feedback domain.Feedback
	var commentsJSON []byte
	err := r.db.QueryRow(ctx, query, versionID).Scan(
		&feedback.ID, &feedback.VersionID, &feedback.TaskID,
		&feedback.Scores.Overall, &feedback.Scores.Format, &feedback.Scores.Logic,
		&feedback.Summary, &commentsJSON, &feedback.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("feedback for version", strconv.FormatInt(versionID, 10))
		}
		return nil, fmt.Errorf("failed to get feedback for version %d: %w", versionID, err)
	}

	if len(commentsJSON) > 0 {
		if err := json.Unmarshal(commentsJSON, &feedback.Comments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal comments: %w", err)
		}
	}

	return &feedback, nil
}
