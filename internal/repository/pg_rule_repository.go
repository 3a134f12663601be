package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nakbase/paper-review-service/internal/database"
	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/vectorstore"
)

// Compile-time interface verification.
var _ RuleRepository = (*PgRuleRepository)(nil)

// PgRuleRepository is a PostgreSQL implementation of RuleRepository.
type PgRuleRepository struct {
	db database.DBTX
}

// NewPgRuleRepository creates a new PostgreSQL conference rule repository.
func NewPgRuleRepository(db database.DBTX) *PgRuleRepository {
	return &PgRuleRepository{db: db}
}

// GetByID fetches a conference rule by its identifier.
func (r *PgRuleRepository) GetByID(ctx context.Context, id string) (*domain.ConferenceRule, error) {
	query := `
		SELECT id, name, format_rules, style_guide, created_at
		FROM conference_rules
		WHERE id = $1`

	var rule domain.ConferenceRule
	var formatRulesJSON []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rule.ID, &rule.Name, &formatRulesJSON, &rule.StyleGuide, &rule.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("conference rule", id)
		}
		return nil, fmt.Errorf("failed to get conference rule %s: %w", id, err)
	}

	if len(formatRulesJSON) > 0 {
		if err := json.Unmarshal(formatRulesJSON, &rule.FormatRules); err != nil {
			return nil, fmt.Errorf("failed to unmarshal format rules: %w", err)
		}
	}

	return &rule, nil
}

// FindSimilar returns the rules closest to the query embedding under cosine
// distance, most similar first. Rules without an embedding are skipped.
func (r *PgRuleRepository) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]RuleMatch, error) {
	if len(embedding) == 0 {
		return nil, domain.NewValidationError("embedding", "query embedding is required")
	}
	if limit <= 0 {
		limit = 1
	}

	query := `
		SELECT id, name, format_rules, style_guide, created_at,
		       1 - (embedding <=> $1::vector) AS similarity
		FROM conference_rules
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, vectorstore.EncodeVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search conference rules: %w", err)
	}
	defer rows.Close()

	var matches []RuleMatch
	for rows.Next() {
		var match RuleMatch
		var formatRulesJSON []byte
		if err := rows.Scan(
			&match.Rule.ID, &match.Rule.Name, &formatRulesJSON,
			&match.Rule.StyleGuide, &match.Rule.CreatedAt, &match.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan conference rule: %w", err)
		}
		if len(formatRulesJSON) > 0 {
			if err := json.Unmarshal(formatRulesJSON, &match.Rule.FormatRules); err != nil {
				return nil, fmt.Errorf("failed to unmarshal format rules: %w", err)
			}
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conference rules: %w", err)
	}

	return matches, nil
}
