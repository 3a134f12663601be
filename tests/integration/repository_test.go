//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/repository"
)

func TestPgTaskRepository_Integration(t *testing.T) {
	cleanTables(t, "papers")
	repo := repository.NewPgTaskRepository(testPool)
	ctx := context.Background()

	t.Run("full lifecycle with timestamps", func(t *testing.T) {
		versionID, _ := seedVersion(t, "lifecycle paper")
		taskID := seedTask(t, versionID)

		require.NoError(t, repo.UpdateStatus(ctx, taskID, domain.TaskStatusPending, domain.TaskStatusParsing))

		got, err := repo.GetByID(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusParsing, got.Status)
		require.NotNil(t, got.StartedAt, "started_at is stamped when work begins")
		assert.Nil(t, got.CompletedAt)

		require.NoError(t, repo.UpdateStatus(ctx, taskID, domain.TaskStatusParsing, domain.TaskStatusRAG))
		require.NoError(t, repo.UpdateStatus(ctx, taskID, domain.TaskStatusRAG, domain.TaskStatusLLM))
		require.NoError(t, repo.UpdateStatus(ctx, taskID, domain.TaskStatusLLM, domain.TaskStatusCompleted))

		got, err = repo.GetByID(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, got.Status)
		require.NotNil(t, got.CompletedAt, "completed_at is stamped on the terminal transition")
	})

	t.Run("invalid transition is rejected", func(t *testing.T) {
		versionID, _ := seedVersion(t, "invalid transition paper")
		taskID := seedTask(t, versionID)

		err := repo.UpdateStatus(ctx, taskID, domain.TaskStatusPending, domain.TaskStatusLLM)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		got, err := repo.GetByID(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, got.Status)
	})

	t.Run("stale from status loses the guarded update", func(t *testing.T) {
		versionID, _ := seedVersion(t, "stale status paper")
		taskID := seedTask(t, versionID)

		require.NoError(t, repo.UpdateStatus(ctx, taskID, domain.TaskStatusPending, domain.TaskStatusParsing))

		// Same transition again: the row is no longer pending.
		err := repo.UpdateStatus(ctx, taskID, domain.TaskStatusPending, domain.TaskStatusParsing)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("retry resets to pending and clears the error", func(t *testing.T) {
		versionID, _ := seedVersion(t, "retry paper")
		taskID := seedTask(t, versionID)

		require.NoError(t, repo.UpdateStatus(ctx, taskID, domain.TaskStatusPending, domain.TaskStatusParsing))

		count, err := repo.IncrementRetryAndReset(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		got, err := repo.GetByID(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, got.Status)
		assert.Equal(t, 1, got.RetryCount)
		assert.Nil(t, got.ErrorMessage)
	})

	t.Run("mark error is terminal", func(t *testing.T) {
		versionID, _ := seedVersion(t, "error paper")
		taskID := seedTask(t, versionID)

		require.NoError(t, repo.MarkError(ctx, taskID, "parse service unreachable"))

		got, err := repo.GetByID(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusError, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "parse service unreachable", *got.ErrorMessage)
		require.NotNil(t, got.CompletedAt)
	})

	t.Run("missing task returns not found", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 999999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestPgFeedbackRepository_Integration(t *testing.T) {
	cleanTables(t, "papers")
	repo := repository.NewPgFeedbackRepository(testPool)
	ctx := context.Background()

	t.Run("duplicate create for a task is a no-op", func(t *testing.T) {
		versionID, _ := seedVersion(t, "feedback paper")
		taskID := seedTask(t, versionID)

		first := &domain.Feedback{
			VersionID: versionID,
			TaskID:    &taskID,
			Scores:    domain.ScoreSet{Overall: 7},
			Summary:   "solid draft",
			Comments:  domain.ReviewComments{Suggestions: []string{"tighten the abstract"}},
		}
		require.NoError(t, repo.Create(ctx, first))

		second := &domain.Feedback{
			VersionID: versionID,
			TaskID:    &taskID,
			Scores:    domain.ScoreSet{Overall: 2},
			Summary:   "redelivered attempt, must not overwrite",
		}
		require.NoError(t, repo.Create(ctx, second))

		got, err := repo.GetLatestByVersion(ctx, versionID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.Scores.Overall)
		assert.Equal(t, "solid draft", got.Summary)

		var count int
		require.NoError(t, testPool.QueryRow(ctx,
			`SELECT count(*) FROM feedbacks WHERE task_id = $1`, taskID).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("latest by version wins over older rows", func(t *testing.T) {
		versionID, _ := seedVersion(t, "multi feedback paper")
		firstTask := seedTask(t, versionID)
		secondTask := seedTask(t, versionID)

		require.NoError(t, repo.Create(ctx, &domain.Feedback{
			VersionID: versionID, TaskID: &firstTask,
			Scores: domain.ScoreSet{Overall: 4}, Summary: "older",
		}))
		require.NoError(t, repo.Create(ctx, &domain.Feedback{
			VersionID: versionID, TaskID: &secondTask,
			Scores: domain.ScoreSet{Overall: 8}, Summary: "newer",
		}))

		got, err := repo.GetLatestByVersion(ctx, versionID)
		require.NoError(t, err)
		assert.Equal(t, "newer", got.Summary)
	})
}
