package vectorstore

import (
	"context"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/observability"
)

func newTestStore(t *testing.T, dimension int) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewStore(mock, dimension, zerolog.Nop(), observability.NewMetrics()), mock
}

func TestReplaceChunksRejectsDimensionMismatch(t *testing.T) {
	store, mock := newTestStore(t, 3)

	err := store.ReplaceChunks(context.Background(), 1, []domain.Chunk{
		{ChunkIndex: 0, Content: "text", Embedding: []float32{0.1, 0.2}},
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceChunksDeletesThenInserts(t *testing.T) {
	store, mock := newTestStore(t, 3)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chunks WHERE file_id = \\$1").
		WithArgs(int64(1)).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	batch := mock.ExpectBatch()
	batch.ExpectExec("INSERT INTO chunks").
		WithArgs(int64(1), 0, (*string)(nil), (*int)(nil), "first", pgxmock.AnyArg(), "[0.1,0.2,0.3]").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	batch.ExpectExec("INSERT INTO chunks").
		WithArgs(int64(1), 1, (*string)(nil), (*int)(nil), "second", pgxmock.AnyArg(), "[0.4,0.5,0.6]").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err := store.ReplaceChunks(context.Background(), 1, []domain.Chunk{
		{ChunkIndex: 0, Content: "first", Embedding: []float32{0.1, 0.2, 0.3}},
		{ChunkIndex: 1, Content: "second", Embedding: []float32{0.4, 0.5, 0.6}},
	})
	require.NoError(t, err)
}

func TestReplaceChunksEmptySetClearsFile(t *testing.T) {
	store, mock := newTestStore(t, 3)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM chunks WHERE file_id = \\$1").
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, store.ReplaceChunks(context.Background(), 9, nil))
}

func TestSearchExcludesOwnFile(t *testing.T) {
	store, mock := newTestStore(t, 3)

	rows := pgxmock.NewRows([]string{
		"id", "file_id", "chunk_index", "section_title", "page_number", "content", "similarity",
	}).AddRow(int64(10), int64(2), 0, (*string)(nil), (*int)(nil), "related text", 0.91)

	mock.ExpectQuery("SELECT(.|\n)*FROM chunks(.|\n)*file_id != ALL").
		WithArgs("[0.1,0.2,0.3]", []int64{1}, 5).
		WillReturnRows(rows)

	hits, err := store.Search(context.Background(), []float32{0.1, 0.2, 0.3}, 5, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].Chunk.FileID)
	assert.InDelta(t, 0.91, hits[0].Similarity, 0.0001)
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	store, _ := newTestStore(t, 768)

	_, err := store.Search(context.Background(), []float32{0.1}, 5)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestTruncateSectionTitle(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := truncateSectionTitle(&long)
	require.NotNil(t, got)
	assert.Len(t, []rune(*got), 255)
	assert.True(t, strings.HasSuffix(*got, "..."))

	short := "Introduction"
	assert.Equal(t, &short, truncateSectionTitle(&short))
	assert.Nil(t, truncateSectionTitle(nil))
}
