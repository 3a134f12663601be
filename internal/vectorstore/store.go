package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/nakbase/paper-review-service/internal/database"
	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/observability"
)

// maxSectionTitleLen is the column limit for chunk section titles. Longer
// titles are truncated with a marker rather than rejected.
const maxSectionTitleLen = 255

// DB is the database surface the store needs: plain queries plus the
// ability to open a transaction for the replace operation.
type DB interface {
	database.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SearchHit pairs a stored chunk with its similarity to the query vector.
type SearchHit struct {
	Chunk      domain.Chunk
	Similarity float64
}

// Store reads and writes manuscript chunks with pgvector embeddings.
type Store struct {
	db        DB
	dimension int
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewStore creates a chunk store enforcing the given embedding dimension.
func NewStore(db DB, dimension int, logger zerolog.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		db:        db,
		dimension: dimension,
		logger:    logger.With().Str("component", "vectorstore").Logger(),
		metrics:   metrics,
	}
}

// ReplaceChunks atomically replaces all stored chunks for a file. Existing
// rows are deleted and the new set inserted in one transaction, so a
// reprocessed file never ends up with a mix of old and new chunks.
func (s *Store) ReplaceChunks(ctx context.Context, fileID int64, chunks []domain.Chunk) error {
	for i, chunk := range chunks {
		if len(chunk.Embedding) != s.dimension {
			return fmt.Errorf("chunk %d has %d dims, store requires %d: %w",
				i, len(chunk.Embedding), s.dimension, domain.ErrDimensionMismatch)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin chunk replace: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("failed to delete chunks for file %d: %w", fileID, err)
	}

	if len(chunks) > 0 {
		batch := &pgx.Batch{}
		for _, chunk := range chunks {
			batch.Queue(`
				INSERT INTO chunks (file_id, chunk_index, section_title, page_number, content, location, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7::vector)`,
				fileID, chunk.ChunkIndex, truncateSectionTitle(chunk.SectionTitle),
				chunk.PageNumber, chunk.Content, chunk.LocationJSON,
				EncodeVector(chunk.Embedding),
			)
		}

		results := tx.SendBatch(ctx, batch)
		for range chunks {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("failed to insert chunk for file %d: %w", fileID, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close chunk insert batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit chunk replace: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ChunksStored.Add(float64(len(chunks)))
	}
	s.logger.Debug().
		Int64("file_id", fileID).
		Int("chunks", len(chunks)).
		Msg("replaced stored chunks")

	return nil
}

// Search returns the chunks closest to the query embedding under cosine
// distance, most similar first. Files named in exclude are filtered out so
// a manuscript is never compared against its own chunks.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int, exclude ...int64) ([]SearchHit, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("query has %d dims, store requires %d: %w",
			len(embedding), s.dimension, domain.ErrDimensionMismatch)
	}
	if limit <= 0 {
		limit = 1
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, file_id, chunk_index, section_title, page_number, content,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM chunks
		WHERE embedding IS NOT NULL`)
	args := []interface{}{EncodeVector(embedding)}
	if len(exclude) > 0 {
		args = append(args, exclude)
		sb.WriteString(fmt.Sprintf(" AND file_id != ALL($%d)", len(args)))
	}
	args = append(args, limit)
	sb.WriteString(fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args)))

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(
			&hit.Chunk.ID, &hit.Chunk.FileID, &hit.Chunk.ChunkIndex,
			&hit.Chunk.SectionTitle, &hit.Chunk.PageNumber, &hit.Chunk.Content,
			&hit.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}

	if s.metrics != nil {
		s.metrics.ChunksSearched.Inc()
	}

	return hits, nil
}

// truncateSectionTitle clamps a title to the column limit, marking the cut.
func truncateSectionTitle(title *string) *string {
	if title == nil {
		return nil
	}
	runes := []rune(*title)
	if len(runes) <= maxSectionTitleLen {
		return title
	}
	truncated := string(runes[:maxSectionTitleLen-3]) + "..."
	return &truncated
}
