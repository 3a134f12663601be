package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nakbase/paper-review-service/internal/config"
	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/parser"
	"github.com/nakbase/paper-review-service/internal/repository"
	"github.com/nakbase/paper-review-service/internal/vectorstore"
)

// ChunkSearcher is the similarity search surface the assembler needs.
type ChunkSearcher interface {
	Search(ctx context.Context, embedding []float32, limit int, exclude ...int64) ([]vectorstore.SearchHit, error)
}

// FileParser is the parsing surface the assembler needs for parent revisions.
type FileParser interface {
	Parse(ctx context.Context, filePath string) (*parser.ParseResult, error)
}

// ReviewContext is everything gathered for prompt assembly beyond the
// manuscript itself. Every field is optional: context gathering is best
// effort and an empty context still produces a valid review.
type ReviewContext struct {
	// Rules are the conference rules to review against.
	Rules []domain.ConferenceRule

	// PriorFeedback is the review of the previous submission round, set
	// only for resubmissions that have stored feedback.
	PriorFeedback *domain.Feedback

	// RelatedChunks are similar spans from other manuscripts.
	RelatedChunks []vectorstore.SearchHit

	// Diff is the compact unified diff against the previous revision.
	Diff string
}

// IsResubmission reports whether prior-round context was found.
func (rc *ReviewContext) IsResubmission() bool {
	return rc.PriorFeedback != nil || rc.Diff != ""
}

// ContextAssembler gathers review context from the database, the vector
// store and the parent revision. Failures in any branch are logged and
// leave that part of the context empty.
type ContextAssembler struct {
	papers   repository.PaperRepository
	rules    repository.RuleRepository
	feedback repository.FeedbackRepository
	searcher ChunkSearcher
	parser   FileParser
	differ   *DiffGenerator
	cfg      *config.PipelineConfig
	logger   zerolog.Logger
}

// NewContextAssembler creates a context assembler.
func NewContextAssembler(
	papers repository.PaperRepository,
	rules repository.RuleRepository,
	feedback repository.FeedbackRepository,
	searcher ChunkSearcher,
	fileParser FileParser,
	differ *DiffGenerator,
	cfg *config.PipelineConfig,
	logger zerolog.Logger,
) *ContextAssembler {
	return &ContextAssembler{
		papers:   papers,
		rules:    rules,
		feedback: feedback,
		searcher: searcher,
		parser:   fileParser,
		differ:   differ,
		cfg:      cfg,
		logger:   logger.With().Str("component", "context_assembler").Logger(),
	}
}

// Assemble gathers the review context for a task. The query embedding is
// reused for both rule and chunk similarity search. fileID names the file
// under review so its own chunks are excluded from retrieval.
func (a *ContextAssembler) Assemble(
	ctx context.Context,
	task *domain.InferenceTask,
	paper *domain.Paper,
	content string,
	fileID int64,
	queryEmbedding []float32,
) (*ReviewContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc := &ReviewContext{}
	log := a.logger.With().Int64("task_id", task.ID).Logger()

	rc.Rules = a.gatherRules(ctx, task, queryEmbedding, log)
	a.gatherPriorRound(ctx, rc, paper, content, log)
	rc.RelatedChunks = a.gatherRelatedChunks(ctx, fileID, queryEmbedding, log)

	return rc, nil
}

// gatherRules resolves conference rules. The directly named rule comes
// first; similarity search then adds related guidance regardless, with the
// named rule deduplicated out of the matches.
func (a *ContextAssembler) gatherRules(ctx context.Context, task *domain.InferenceTask, queryEmbedding []float32, log zerolog.Logger) []domain.ConferenceRule {
	var rules []domain.ConferenceRule
	seen := make(map[string]bool)

	if task.ConferenceRuleID != nil {
		rule, err := a.rules.GetByID(ctx, *task.ConferenceRuleID)
		if err != nil {
			log.Warn().Err(err).Str("rule_id", *task.ConferenceRuleID).Msg("conference rule lookup failed")
		} else {
			rules = append(rules, *rule)
			seen[rule.ID] = true
		}
	}

	if len(queryEmbedding) == 0 {
		return rules
	}

	matches, err := a.rules.FindSimilar(ctx, queryEmbedding, a.cfg.TopK)
	if err != nil {
		log.Warn().Err(err).Msg("conference rule search failed, skipping rule guidance")
		return rules
	}

	for _, m := range matches {
		if m.Similarity >= a.cfg.RuleSimilarityThreshold && !seen[m.Rule.ID] {
			rules = append(rules, m.Rule)
			seen[m.Rule.ID] = true
		}
	}
	return rules
}

// gatherPriorRound loads the parent revision's feedback and computes the
// revision diff. Both depend on the paper having a parent.
func (a *ContextAssembler) gatherPriorRound(ctx context.Context, rc *ReviewContext, paper *domain.Paper, content string, log zerolog.Logger) {
	if paper == nil || paper.ParentID == nil {
		return
	}

	parentVersion, err := a.papers.GetLatestVersion(ctx, *paper.ParentID)
	if err != nil {
		log.Warn().Err(err).Int64("parent_id", *paper.ParentID).Msg("parent version lookup failed, skipping prior round context")
		return
	}

	if feedback, err := a.feedback.GetLatestByVersion(ctx, parentVersion.ID); err != nil {
		log.Debug().Err(err).Int64("parent_version_id", parentVersion.ID).Msg("no prior feedback found")
	} else {
		rc.PriorFeedback = feedback
	}

	parentFile, err := a.papers.GetPrimaryFile(ctx, parentVersion.ID)
	if err != nil {
		log.Warn().Err(err).Int64("parent_version_id", parentVersion.ID).Msg("parent file lookup failed, skipping diff")
		return
	}

	parsed, err := a.parser.Parse(ctx, parentFile.Path)
	if err != nil {
		log.Warn().Err(err).Str("file_path", parentFile.Path).Msg("parent parse failed, skipping diff")
		return
	}

	diff, err := a.differ.Generate(parsed.Content, content)
	if err != nil {
		log.Warn().Err(err).Msg("diff generation failed, skipping diff")
		return
	}
	rc.Diff = diff
}

// gatherRelatedChunks runs similarity search over stored chunks, excluding
// the file under review.
func (a *ContextAssembler) gatherRelatedChunks(ctx context.Context, fileID int64, queryEmbedding []float32, log zerolog.Logger) []vectorstore.SearchHit {
	if len(queryEmbedding) == 0 {
		return nil
	}

	hits, err := a.searcher.Search(ctx, queryEmbedding, a.cfg.TopK, fileID)
	if err != nil {
		log.Warn().Err(err).Msg("chunk search failed, reviewing without related excerpts")
		return nil
	}

	var kept []vectorstore.SearchHit
	for _, hit := range hits {
		if hit.Similarity >= a.cfg.ChunkSimilarityThreshold {
			kept = append(kept, hit)
		}
	}
	return kept
}
