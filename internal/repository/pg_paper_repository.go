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
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db database.DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db database.DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

// GetByID fetches a paper by its primary key.
func (r *PgPaperRepository) GetByID(ctx context.Context, id int64) (*domain.Paper, error) {
	query := `
		SELECT id, parent_id, user_id, title, status, created_at, updated_at
		FROM papers
		WHERE id = $1`

	var paper domain.Paper
	var status string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&paper.ID, &paper.ParentID, &paper.UserID, &paper.Title, &status,
		&paper.CreatedAt, &paper.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("failed to get paper %d: %w", id, err)
	}

	paper.Status = domain.PaperStatus(status)
	return &paper, nil
}

// GetVersion fetches a version by its primary key.
func (r *PgPaperRepository) GetVersion(ctx context.Context, versionID int64) (*domain.Version, error) {
	query := `
		SELECT id, paper_id, version_number, created_at
		FROM versions
		WHERE id = $1`

	var version domain.Version
	err := r.db.QueryRow(ctx, query, versionID).Scan(
		&version.ID, &version.PaperID, &version.VersionNumber, &version.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("version", strconv.FormatInt(versionID, 10))
		}
		return nil, fmt.Errorf("failed to get version %d: %w", versionID, err)
	}

	return &version, nil
}

// GetLatestVersion fetches the newest version of a paper.
func (r *PgPaperRepository) GetLatestVersion(ctx context.Context, paperID int64) (*domain.Version, error) {
	query := `
		SELECT id, paper_id, version_number, created_at
		FROM versions
		WHERE paper_id = $1
		ORDER BY version_number DESC
		LIMIT 1`

	var version domain.Version
	err := r.db.QueryRow(ctx, query, paperID).Scan(
		&version.ID, &version.PaperID, &version.VersionNumber, &version.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("version for paper", strconv.FormatInt(paperID, 10))
		}
		return nil, fmt.Errorf("failed to get latest version for paper %d: %w", paperID, err)
	}

	return &version, nil
}

// GetPrimaryFile fetches the primary file attached to a version.
func (r *PgPaperRepository) GetPrimaryFile(ctx context.Context, versionID int64) (*domain.File, error) {
	query := `
		SELECT id, version_id, file_path, file_type, original_filename, is_primary, created_at
		FROM files
		WHERE version_id = $1 AND is_primary = TRUE
		ORDER BY id
		LIMIT 1`

	var file domain.File
	err := r.db.QueryRow(ctx, query, versionID).Scan(
		&file.ID, &file.VersionID, &file.Path, &file.FileType,
		&file.OriginalFilename, &file.IsPrimary, &file.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("primary file for version", strconv.FormatInt(versionID, 10))
		}
		return nil, fmt.Errorf("failed to get primary file for version %d: %w", versionID, err)
	}

	return &file, nil
}

// UpdateStatus mirrors a task outcome onto the paper row.
func (r *PgPaperRepository) UpdateStatus(ctx context.Context, paperID int64, status domain.PaperStatus) error {
	query := `
		UPDATE papers
		SET status = $1, updated_at = now()
		WHERE id = $2`

	tag, err := r.db.Exec(ctx, query, string(status), paperID)
	if err != nil {
		return fmt.Errorf("failed to update paper %d status: %w", paperID, err)
	}

	if tag.RowsAffected() == 0 {
		return domain.NewNotFoundError("paper", strconv.FormatInt(paperID, 10))
	}

	return nil
}
