package pipeline

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/repository"
)

func (fx *fixture) assembler() *ContextAssembler {
	return NewContextAssembler(fx.papers, fx.rules, fx.feedback, fx.store, fx.parser,
		NewDiffGenerator(fx.cfg.DiffMaxLen), fx.cfg, zerolog.Nop())
}

func TestAssembleAddsSimilarRulesToNamedRule(t *testing.T) {
	fx := newFixture()
	named := domain.ConferenceRule{ID: "rule-neurips", Name: "NeurIPS 2026"}
	fx.rules.rules["rule-neurips"] = &named
	fx.rules.similar = []repository.RuleMatch{
		{Rule: named, Similarity: 0.95},
		{Rule: domain.ConferenceRule{ID: "rule-icml", Name: "ICML 2026"}, Similarity: 0.8},
		{Rule: domain.ConferenceRule{ID: "rule-far", Name: "Unrelated Venue"}, Similarity: 0.2},
	}

	ruleID := "rule-neurips"
	task := &domain.InferenceTask{ID: 1, VersionID: 10, ConferenceRuleID: &ruleID}

	rc, err := fx.assembler().Assemble(context.Background(), task,
		fx.papers.papers[100], "manuscript", 1000, []float32{0.1, 0.1, 0.1, 0.1})
	require.NoError(t, err)

	// The named rule leads, similar guidance follows with the named rule
	// deduplicated and sub-threshold matches dropped.
	require.Len(t, rc.Rules, 2)
	assert.Equal(t, "NeurIPS 2026", rc.Rules[0].Name)
	assert.Equal(t, "ICML 2026", rc.Rules[1].Name)
}

func TestAssembleFallsBackToSimilarRulesWithoutNamedRule(t *testing.T) {
	fx := newFixture()
	fx.rules.similar = []repository.RuleMatch{
		{Rule: domain.ConferenceRule{ID: "rule-icml", Name: "ICML 2026"}, Similarity: 0.8},
	}

	task := &domain.InferenceTask{ID: 1, VersionID: 10}

	rc, err := fx.assembler().Assemble(context.Background(), task,
		fx.papers.papers[100], "manuscript", 1000, []float32{0.1, 0.1, 0.1, 0.1})
	require.NoError(t, err)
	require.Len(t, rc.Rules, 1)
	assert.Equal(t, "ICML 2026", rc.Rules[0].Name)
}

func TestAssembleKeepsSimilarRulesWhenNamedLookupFails(t *testing.T) {
	fx := newFixture()
	fx.rules.similar = []repository.RuleMatch{
		{Rule: domain.ConferenceRule{ID: "rule-icml", Name: "ICML 2026"}, Similarity: 0.8},
	}

	ruleID := "rule-missing"
	task := &domain.InferenceTask{ID: 1, VersionID: 10, ConferenceRuleID: &ruleID}

	rc, err := fx.assembler().Assemble(context.Background(), task,
		fx.papers.papers[100], "manuscript", 1000, []float32{0.1, 0.1, 0.1, 0.1})
	require.NoError(t, err)
	require.Len(t, rc.Rules, 1)
	assert.Equal(t, "ICML 2026", rc.Rules[0].Name)
}
