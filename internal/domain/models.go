// Package domain contains the core entities of the paper review service:
// manuscripts, their versions and files, stored embedding chunks, conference
// rules, inference tasks and the feedback they produce.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of an inference task.
type TaskStatus string

// Inference task statuses. A task moves pending -> parsing -> rag -> llm ->
// completed. A retry moves it back to pending; error is reachable from any
// non-terminal state.
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusParsing   TaskStatus = "parsing"
	TaskStatusRAG       TaskStatus = "rag"
	TaskStatusLLM       TaskStatus = "llm"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusError     TaskStatus = "error"
)

// validTaskTransitions defines the allowed status transitions for inference tasks.
var validTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusParsing, TaskStatusError},
	TaskStatusParsing: {TaskStatusRAG, TaskStatusPending, TaskStatusError},
	TaskStatusRAG:     {TaskStatusLLM, TaskStatusPending, TaskStatusError},
	TaskStatusLLM:     {TaskStatusCompleted, TaskStatusPending, TaskStatusError},
}

// CanTransitionTo reports whether a task in status s may move to target.
// Terminal statuses (completed, error) allow no further transitions.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	for _, allowed := range validTaskTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the task lifecycle.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// PaperStatus mirrors the outcome of the latest inference task on a paper.
type PaperStatus string

// Paper statuses.
const (
	PaperStatusDraft      PaperStatus = "draft"
	PaperStatusProcessing PaperStatus = "processing"
	PaperStatusCompleted  PaperStatus = "completed"
	PaperStatusError      PaperStatus = "error"
)

// InferenceTask tracks the asynchronous analysis of one manuscript version.
// Rows are created when a version is submitted and mutated only by the
// pipeline's state machine; they are never deleted.
type InferenceTask struct {
	ID               int64
	VersionID        int64
	Status           TaskStatus
	RetryCount       int
	ErrorMessage     *string
	ConferenceRuleID *string
	StartedAt        *time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Paper is a logical manuscript lineage. ParentID links to the prior
// submission round, forming a tree of revisions.
type Paper struct {
	ID        int64
	ParentID  *int64
	UserID    int64
	Title     string
	Status    PaperStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Version is an immutable snapshot of a manuscript submission.
// VersionNumber increases monotonically within a paper lineage.
type Version struct {
	ID            int64
	PaperID       int64
	VersionNumber int
	CreatedAt     time.Time
}

// File is a stored artifact attached to a version. Exactly one file per
// version is marked primary; that file is the pipeline's input.
type File struct {
	ID               int64
	VersionID        int64
	Path             string
	FileType         string
	OriginalFilename string
	IsPrimary        bool
	CreatedAt        time.Time
}

// Chunk is a bounded span of manuscript text stored with its embedding
// vector for similarity search. ChunkIndex is unique per file.
type Chunk struct {
	ID           int64
	FileID       int64
	ChunkIndex   int
	SectionTitle *string
	PageNumber   *int
	Content      string
	LocationJSON json.RawMessage
	Embedding    []float32
	CreatedAt    time.Time
}

// ConferenceRule is a named format/style policy. Its embedding makes the
// rule a similarity-search target in addition to a direct lookup.
type ConferenceRule struct {
	ID          string
	Name        string
	FormatRules map[string]string
	StyleGuide  string
	Embedding   []float32
	CreatedAt   time.Time
}

// EmbeddingText returns the text embedded for rule similarity search: the
// rule name, its format rules and the style guide concatenated. Rule keys
// are sorted so the same rule always embeds identically.
func (r *ConferenceRule) EmbeddingText() string {
	var sb strings.Builder
	sb.WriteString(r.Name)

	keys := make([]string, 0, len(r.FormatRules))
	for k := range r.FormatRules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n%s: %s", k, r.FormatRules[k])
	}

	if r.StyleGuide != "" {
		sb.WriteString("\n")
		sb.WriteString(r.StyleGuide)
	}
	return sb.String()
}

// Feedback is the pipeline's terminal output for a version. Once written
// it is immutable.
type Feedback struct {
	ID        int64
	VersionID int64
	TaskID    *int64
	Scores    ScoreSet
	Comments  ReviewComments
	Summary   string
	CreatedAt time.Time
}

// ScoreSet holds the numeric assessment of a manuscript.
type ScoreSet struct {
	Overall int `json:"overall"`
	Format  int `json:"format,omitempty"`
	Logic   int `json:"logic,omitempty"`
}

// ReviewComments is the structured comment payload stored with feedback.
// ImprovementsFromPrevious is present only when the review compared against
// a prior submission round.
type ReviewComments struct {
	Typos                    []string `json:"typos"`
	Suggestions              []string `json:"suggestions"`
	ImprovementsFromPrevious []string `json:"improvements_from_previous,omitempty"`
	RawResponse              string   `json:"raw_response,omitempty"`
}

// ReviewDocument is the structured result recovered from a generation
// backend response. A degraded document (Raw populated, free-form fields
// filled from truncated raw text) is still a valid ReviewDocument.
type ReviewDocument struct {
	Score                    int      `json:"score"`
	Summary                  string   `json:"summary"`
	Typos                    []string `json:"typos"`
	Suggestions              []string `json:"suggestions"`
	ImprovementsFromPrevious []string `json:"improvements_from_previous,omitempty"`
	Raw                      string   `json:"raw_response,omitempty"`
}
