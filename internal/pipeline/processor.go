package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nakbase/paper-review-service/internal/config"
	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/llm"
	"github.com/nakbase/paper-review-service/internal/observability"
	"github.com/nakbase/paper-review-service/internal/parser"
	"github.com/nakbase/paper-review-service/internal/repository"
)

// defaultChunkSize is the chunk span in runes used when the parser returns
// flat text without pre-segmented chunks.
const defaultChunkSize = 1000

// Outcome tells the dispatcher what to do with the queue message after a
// processing attempt.
type Outcome int

const (
	// OutcomeCompleted means the task reached a terminal success state or
	// was already terminal; the message can be acknowledged.
	OutcomeCompleted Outcome = iota

	// OutcomeRetry means the task was returned to pending and should be
	// re-enqueued.
	OutcomeRetry

	// OutcomeFailed means the task reached the terminal error state; the
	// message can be acknowledged.
	OutcomeFailed
)

// ChunkStore is the vector store surface the processor needs.
type ChunkStore interface {
	ChunkSearcher
	ReplaceChunks(ctx context.Context, fileID int64, chunks []domain.Chunk) error
}

// Notifier publishes task transition events. Publishing is fire and forget;
// implementations swallow and log their own errors.
type Notifier interface {
	Publish(ctx context.Context, event domain.TaskEvent)
}

// Processor drives a single inference task through the pipeline state
// machine: pending -> parsing -> rag -> llm -> completed, with retryable
// failures returning the task to pending until the budget runs out.
type Processor struct {
	tasks     repository.TaskRepository
	papers    repository.PaperRepository
	feedback  repository.FeedbackRepository
	store     ChunkStore
	parser    FileParser
	embedder  llm.Embedder
	generator llm.Generator
	assembler *ContextAssembler
	prompts   *PromptBuilder
	notifier  Notifier
	cfg       *config.PipelineConfig
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewProcessor creates a task processor.
func NewProcessor(
	tasks repository.TaskRepository,
	papers repository.PaperRepository,
	feedback repository.FeedbackRepository,
	store ChunkStore,
	fileParser FileParser,
	embedder llm.Embedder,
	generator llm.Generator,
	assembler *ContextAssembler,
	prompts *PromptBuilder,
	notifier Notifier,
	cfg *config.PipelineConfig,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Processor {
	return &Processor{
		tasks:     tasks,
		papers:    papers,
		feedback:  feedback,
		store:     store,
		parser:    fileParser,
		embedder:  embedder,
		generator: generator,
		assembler: assembler,
		prompts:   prompts,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With().Str("component", "processor").Logger(),
		metrics:   metrics,
	}
}

// Process runs one attempt for the given task and reports how the queue
// message should be handled.
func (p *Processor) Process(ctx context.Context, taskID int64) (Outcome, error) {
	log := p.logger.With().Int64("task_id", taskID).Logger()

	task, err := p.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("task not found, dropping message")
			return OutcomeFailed, err
		}
		return OutcomeRetry, fmt.Errorf("failed to load task: %w", err)
	}
	log = observability.WithTaskContext(p.logger, task.ID, task.VersionID)

	if task.Status.IsTerminal() {
		log.Info().Str("status", string(task.Status)).Msg("task already terminal, acknowledging duplicate delivery")
		return OutcomeCompleted, nil
	}

	if task.Status != domain.TaskStatusPending {
		// A redelivery while mid-flight means a previous attempt died.
		log.Warn().Str("status", string(task.Status)).Msg("task redelivered mid-flight, counting as a retry")
		return p.handleFailure(ctx, task, domain.NewRetryableError(task.Status,
			fmt.Errorf("previous attempt did not finish")), log)
	}

	p.metrics.TasksStarted.Inc()
	start := time.Now()

	if err := p.run(ctx, task, log); err != nil {
		return p.handleFailure(ctx, task, err, log)
	}

	p.metrics.TasksCompleted.Inc()
	p.metrics.TaskDuration.Observe(time.Since(start).Seconds())
	log.Info().Dur("elapsed", time.Since(start)).Msg("task completed")
	return OutcomeCompleted, nil
}

// run executes the pipeline phases for a pending task. Any returned error
// has already been classified as retryable or fatal.
func (p *Processor) run(ctx context.Context, task *domain.InferenceTask, log zerolog.Logger) error {
	// Parsing phase.
	if err := p.advance(ctx, task, domain.TaskStatusParsing); err != nil {
		return err
	}
	phaseStart := time.Now()

	version, err := p.papers.GetVersion(ctx, task.VersionID)
	if err != nil {
		return classify(task.Status, err)
	}
	paper, err := p.papers.GetByID(ctx, version.PaperID)
	if err != nil {
		return classify(task.Status, err)
	}
	log = observability.WithPaperContext(log, paper.ID, version.VersionNumber)
	if err := p.papers.UpdateStatus(ctx, paper.ID, domain.PaperStatusProcessing); err != nil {
		log.Warn().Err(err).Msg("failed to mark paper as processing")
	}

	file, err := p.papers.GetPrimaryFile(ctx, version.ID)
	if err != nil {
		return classify(task.Status, err)
	}

	parsed, err := p.parser.Parse(ctx, file.Path)
	if err != nil {
		return classify(task.Status, err)
	}
	p.metrics.PhaseDuration.WithLabelValues(string(domain.TaskStatusParsing)).Observe(time.Since(phaseStart).Seconds())

	// RAG phase: embed and store chunks, then gather review context.
	if err := p.advance(ctx, task, domain.TaskStatusRAG); err != nil {
		return err
	}
	phaseStart = time.Now()

	chunks, err := p.embedChunks(ctx, file.ID, parsed)
	if err != nil {
		return classify(task.Status, err)
	}
	if err := p.store.ReplaceChunks(ctx, file.ID, chunks); err != nil {
		return classify(task.Status, err)
	}

	queryEmbedding, err := p.embedder.Embed(ctx, truncateRunes(parsed.Content, p.cfg.QueryPrefixLen))
	if err != nil {
		return classify(task.Status, err)
	}

	reviewCtx, err := p.assembler.Assemble(ctx, task, paper, parsed.Content, file.ID, queryEmbedding)
	if err != nil {
		return classify(task.Status, err)
	}
	p.metrics.PhaseDuration.WithLabelValues(string(domain.TaskStatusRAG)).Observe(time.Since(phaseStart).Seconds())

	// LLM phase.
	if err := p.advance(ctx, task, domain.TaskStatusLLM); err != nil {
		return err
	}
	phaseStart = time.Now()

	prompt := p.prompts.Build(reviewCtx, parsed.Content)
	raw, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return classify(task.Status, err)
	}

	doc := llm.ParseReview(raw)
	if doc.Raw != "" {
		log.Warn().Msg("model output not parseable, storing degraded review")
	}

	feedback := buildFeedback(task, version, reviewCtx, doc)
	if err := p.feedback.Create(ctx, feedback); err != nil {
		return classify(task.Status, err)
	}
	p.metrics.PhaseDuration.WithLabelValues(string(domain.TaskStatusLLM)).Observe(time.Since(phaseStart).Seconds())

	if err := p.advance(ctx, task, domain.TaskStatusCompleted); err != nil {
		return err
	}
	if err := p.papers.UpdateStatus(ctx, paper.ID, domain.PaperStatusCompleted); err != nil {
		log.Warn().Err(err).Msg("failed to mark paper as completed")
	}

	return nil
}

// embedChunks turns the parsed document into embedded chunks. Flat legacy
// text is segmented locally first.
func (p *Processor) embedChunks(ctx context.Context, fileID int64, parsed *parser.ParseResult) ([]domain.Chunk, error) {
	spans := parsed.Chunks
	if len(spans) == 0 {
		for i, content := range splitContent(parsed.Content, defaultChunkSize) {
			spans = append(spans, parser.ParsedChunk{Index: i, Content: content})
		}
	}

	chunks := make([]domain.Chunk, 0, len(spans))
	for _, span := range spans {
		embedding, err := p.embedder.Embed(ctx, span.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunk %d of file %d: %w", span.Index, fileID, err)
		}

		chunk := domain.Chunk{
			FileID:       fileID,
			ChunkIndex:   span.Index,
			Content:      span.Content,
			LocationJSON: span.Location,
			Embedding:    embedding,
		}
		if span.SectionTitle != "" {
			title := span.SectionTitle
			chunk.SectionTitle = &title
		}
		if span.PageNumber > 0 {
			page := span.PageNumber
			chunk.PageNumber = &page
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// advance moves the task to the next status and publishes the transition.
func (p *Processor) advance(ctx context.Context, task *domain.InferenceTask, to domain.TaskStatus) error {
	if err := p.tasks.UpdateStatus(ctx, task.ID, task.Status, to); err != nil {
		return classify(task.Status, err)
	}
	task.Status = to
	p.publish(ctx, task, "")
	return nil
}

// handleFailure routes a classified phase error: fatal errors and exhausted
// budgets terminate the task, everything else returns it to pending.
func (p *Processor) handleFailure(ctx context.Context, task *domain.InferenceTask, err error, log zerolog.Logger) (Outcome, error) {
	log = observability.WithPhaseContext(log, string(task.Status), task.RetryCount)
	if !domain.IsRetryable(err) {
		log.Error().Err(err).Msg("fatal failure, terminating task")
		return p.fail(ctx, task, err, log)
	}

	if task.RetryCount >= p.cfg.MaxRetries {
		log.Error().Err(err).Int("retry_count", task.RetryCount).Msg("retry budget exhausted, terminating task")
		return p.fail(ctx, task, fmt.Errorf("retry budget exhausted: %w", err), log)
	}

	count, resetErr := p.tasks.IncrementRetryAndReset(ctx, task.ID)
	if resetErr != nil {
		log.Error().Err(resetErr).Msg("failed to reset task for retry, terminating")
		return p.fail(ctx, task, err, log)
	}

	p.metrics.TasksRetried.Inc()
	task.Status = domain.TaskStatusPending
	task.RetryCount = count
	p.publish(ctx, task, "")
	log.Warn().Err(err).Int("retry_count", count).Msg("task returned to pending for retry")
	return OutcomeRetry, nil
}

// fail moves the task to the terminal error status and mirrors the outcome
// onto the paper.
func (p *Processor) fail(ctx context.Context, task *domain.InferenceTask, cause error, log zerolog.Logger) (Outcome, error) {
	if err := p.tasks.MarkError(ctx, task.ID, cause.Error()); err != nil {
		log.Error().Err(err).Msg("failed to mark task as errored")
	}
	task.Status = domain.TaskStatusError
	p.metrics.TasksFailed.Inc()

	if version, err := p.papers.GetVersion(ctx, task.VersionID); err == nil {
		if err := p.papers.UpdateStatus(ctx, version.PaperID, domain.PaperStatusError); err != nil {
			log.Warn().Err(err).Msg("failed to mark paper as errored")
		}
	}

	p.publish(ctx, task, cause.Error())
	return OutcomeFailed, cause
}

// publish emits a fire-and-forget transition event.
func (p *Processor) publish(ctx context.Context, task *domain.InferenceTask, errMsg string) {
	if p.notifier == nil {
		return
	}
	p.notifier.Publish(ctx, domain.TaskEvent{
		EventID:      uuid.NewString(),
		TaskID:       task.ID,
		Status:       task.Status,
		Phase:        domain.PhaseText(task.Status),
		ErrorMessage: errMsg,
		OccurredAt:   time.Now().UTC(),
	})
}

// classify wraps a phase error as retryable or fatal. Missing prerequisites
// and permanent backend rejections are fatal; everything else, including
// unclassified errors, is assumed transient.
func classify(phase domain.TaskStatus, err error) error {
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDimensionMismatch):
		return domain.NewFatalError(phase, err)
	case errors.As(err, &apiErr) && !apiErr.IsTransient():
		return domain.NewFatalError(phase, err)
	default:
		return domain.NewRetryableError(phase, err)
	}
}

// buildFeedback converts a recovered review document into stored feedback.
func buildFeedback(task *domain.InferenceTask, version *domain.Version, rc *ReviewContext, doc *domain.ReviewDocument) *domain.Feedback {
	taskID := task.ID
	feedback := &domain.Feedback{
		VersionID: version.ID,
		TaskID:    &taskID,
		Scores:    domain.ScoreSet{Overall: doc.Score},
		Summary:   doc.Summary,
		Comments: domain.ReviewComments{
			Typos:       doc.Typos,
			Suggestions: doc.Suggestions,
			RawResponse: doc.Raw,
		},
	}
	if rc.IsResubmission() {
		feedback.Comments.ImprovementsFromPrevious = doc.ImprovementsFromPrevious
	}
	return feedback
}

// splitContent segments flat text into fixed-size rune spans.
func splitContent(content string, size int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	runes := []rune(content)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// truncateRunes clamps s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
