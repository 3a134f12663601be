package domain

import "time"

// TaskEvent is the payload broadcast on the notification channel for every
// task status transition. It is an observability side channel: consumers
// must never rely on it for correctness.
type TaskEvent struct {
	EventID      string     `json:"event_id"`
	TaskID       int64      `json:"task_id"`
	Status       TaskStatus `json:"status"`
	Phase        string     `json:"phase,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// PhaseText returns the human-readable progress text published with a
// transition into the given status.
func PhaseText(s TaskStatus) string {
	switch s {
	case TaskStatusPending:
		return "queued for analysis"
	case TaskStatusParsing:
		return "parsing manuscript"
	case TaskStatusRAG:
		return "retrieving related context"
	case TaskStatusLLM:
		return "generating review"
	case TaskStatusCompleted:
		return "analysis complete"
	case TaskStatusError:
		return "analysis failed"
	default:
		return string(s)
	}
}
