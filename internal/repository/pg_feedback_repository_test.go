package repository

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakbase/paper-review-service/internal/domain"
)

func TestPgFeedbackRepositoryCreate(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPgFeedbackRepository(mock)

	taskID := int64(5)
	feedback := &domain.Feedback{
		VersionID: 10,
		TaskID:    &taskID,
		Scores:    domain.ScoreSet{Overall: 7},
		Summary:   "solid work",
	}

	mock.ExpectQuery("INSERT INTO feedbacks").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	require.NoError(t, repo.Create(context.Background(), feedback))
	assert.Equal(t, int64(1), feedback.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFeedbackRepositoryCreateDuplicateIsNoOp(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPgFeedbackRepository(mock)

	taskID := int64(5)
	feedback := &domain.Feedback{VersionID: 10, TaskID: &taskID}

	// ON CONFLICT DO NOTHING yields no row from RETURNING.
	mock.ExpectQuery("INSERT INTO feedbacks").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}))

	require.NoError(t, repo.Create(context.Background(), feedback))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFeedbackRepositoryCreateMissingVersionIsInvalidInput(t *testing.T) {
	mock := newMockPool(t)
	repo := NewPgFeedbackRepository(mock)

	taskID := int64(5)
	feedback := &domain.Feedback{VersionID: 999, TaskID: &taskID}

	mock.ExpectQuery("INSERT INTO feedbacks").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "feedbacks_version_id_fkey"})

	err := repo.Create(context.Background(), feedback)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestTranslateConstraintError(t *testing.T) {
	unique := translateConstraintError(&pgconn.PgError{Code: "23505", ConstraintName: "feedbacks_task_id_key"}, "feedback")
	assert.ErrorIs(t, unique, domain.ErrAlreadyExists)

	fk := translateConstraintError(&pgconn.PgError{Code: "23503", ConstraintName: "feedbacks_version_id_fkey"}, "feedback")
	assert.ErrorIs(t, fk, domain.ErrInvalidInput)

	other := assert.AnError
	assert.Equal(t, other, translateConstraintError(other, "feedback"))
}
