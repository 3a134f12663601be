// Package queue implements the task queue consumer and producer on Kafka:
// message classification, the blocking dequeue loop and task re-enqueueing.
package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// TypeSystemDiagnosis marks a control message requesting a worker
// self-check instead of task processing.
const TypeSystemDiagnosis = "SYSTEM_DIAGNOSIS"

// Job types carried by task messages.
const (
	// JobTypeAnalysis requests the full review pipeline. It is the default
	// when the field is absent.
	JobTypeAnalysis = "ANALYSIS"

	// JobTypeReferenceOnly marks a submission excluded from analysis. The
	// message is acknowledged and dropped.
	JobTypeReferenceOnly = "REFERENCE_ONLY"
)

// Kind discriminates classified queue messages.
type Kind int

const (
	// KindTask is a task reference to process.
	KindTask Kind = iota

	// KindReference is a reference-only submission: acknowledged, never
	// analyzed.
	KindReference

	// KindDiagnosis is a control message triggering a diagnostic pass.
	KindDiagnosis
)

// Message is a classified queue payload.
type Message struct {
	Kind   Kind
	TaskID int64
}

// taskPayload is the JSON form of a task message. ConferenceID and
// ParentPaperID duplicate references the task row already holds; the row is
// authoritative, so they are accepted but not trusted.
type taskPayload struct {
	Type          string `json:"type,omitempty"`
	TaskID        int64  `json:"task_id" validate:"required,gt=0"`
	JobType       string `json:"job_type,omitempty" validate:"omitempty,oneof=ANALYSIS REFERENCE_ONLY"`
	ConferenceID  string `json:"conference_id,omitempty"`
	ParentPaperID int64  `json:"parent_paper_id,omitempty"`
}

var validate = validator.New()

// Classify parses a raw queue payload. Accepted shapes: a JSON object naming
// a task (analysis or reference-only), the SYSTEM_DIAGNOSIS control object,
// and the legacy bare integer task ID that older producers still emit.
// Anything else is an error and the message should be dropped.
func Classify(payload []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	// Legacy producers publish the task ID as a bare integer.
	if id, err := strconv.ParseInt(string(trimmed), 10, 64); err == nil {
		if id <= 0 {
			return nil, fmt.Errorf("non-positive task id %d", id)
		}
		return &Message{Kind: KindTask, TaskID: id}, nil
	}

	var p taskPayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	if p.Type == TypeSystemDiagnosis {
		return &Message{Kind: KindDiagnosis}, nil
	}

	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("invalid task payload: %w", err)
	}

	if p.JobType == JobTypeReferenceOnly {
		return &Message{Kind: KindReference, TaskID: p.TaskID}, nil
	}

	return &Message{Kind: KindTask, TaskID: p.TaskID}, nil
}
