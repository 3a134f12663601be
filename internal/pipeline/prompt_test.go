package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/vectorstore"
)

func TestPromptBuilderOmitsEmptySections(t *testing.T) {
	builder := NewPromptBuilder(10000)

	prompt := builder.Build(&ReviewContext{}, "manuscript body")

	assert.Contains(t, prompt, "## Manuscript")
	assert.Contains(t, prompt, "manuscript body")
	assert.Contains(t, prompt, "## Output Format")
	assert.NotContains(t, prompt, "## Conference Rules")
	assert.NotContains(t, prompt, "## Previous Review")
	assert.NotContains(t, prompt, "## Changes Since Previous Version")
	assert.NotContains(t, prompt, "## Related Excerpts")
	assert.NotContains(t, prompt, "improvements_from_previous")
}

func TestPromptBuilderSectionOrder(t *testing.T) {
	builder := NewPromptBuilder(10000)

	title := "Methods"
	rc := &ReviewContext{
		Rules: []domain.ConferenceRule{{
			Name:        "NeurIPS 2026",
			FormatRules: map[string]string{"page_limit": "9 pages", "font": "Times 10pt"},
			StyleGuide:  "anonymous submissions only",
		}},
		PriorFeedback: &domain.Feedback{
			Scores:   domain.ScoreSet{Overall: 5},
			Summary:  "needs stronger baselines",
			Comments: domain.ReviewComments{Suggestions: []string{"add ablations"}},
		},
		Diff: "--- previous_version\n+++ current_version\n+new result",
		RelatedChunks: []vectorstore.SearchHit{
			{Chunk: domain.Chunk{SectionTitle: &title, Content: "related work text"}, Similarity: 0.9},
		},
	}

	prompt := builder.Build(rc, "the manuscript")

	sections := []string{
		"## Conference Rules",
		"## Previous Review",
		"## Changes Since Previous Version",
		"## Related Excerpts",
		"## Output Format",
		"## Manuscript",
	}
	last := -1
	for _, section := range sections {
		idx := strings.Index(prompt, section)
		assert.Greater(t, idx, last, "section %q out of order", section)
		last = idx
	}

	// Format rules render deterministically sorted by key.
	assert.Less(t, strings.Index(prompt, "font: Times 10pt"), strings.Index(prompt, "page_limit: 9 pages"))
	assert.Contains(t, prompt, "Previous overall score: 5")
	assert.Contains(t, prompt, "[Methods] related work text")
}

func TestPromptBuilderAdaptsSchemaForResubmission(t *testing.T) {
	builder := NewPromptBuilder(10000)

	first := builder.Build(&ReviewContext{}, "text")
	assert.NotContains(t, first, "improvements_from_previous")

	resubmission := builder.Build(&ReviewContext{
		PriorFeedback: &domain.Feedback{Scores: domain.ScoreSet{Overall: 4}},
	}, "text")
	assert.Contains(t, resubmission, "improvements_from_previous")

	// A diff alone also marks a resubmission.
	diffOnly := builder.Build(&ReviewContext{Diff: "+changed"}, "text")
	assert.Contains(t, diffOnly, "improvements_from_previous")
}

func TestPromptBuilderTruncatesManuscript(t *testing.T) {
	builder := NewPromptBuilder(50)

	prompt := builder.Build(&ReviewContext{}, strings.Repeat("a", 500))

	assert.Contains(t, prompt, "(manuscript truncated)")
	assert.NotContains(t, prompt, strings.Repeat("a", 51))
}
