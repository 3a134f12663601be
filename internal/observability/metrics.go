package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the worker.
type Metrics struct {
	registry *prometheus.Registry

	// Task lifecycle
	TasksStarted   prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksRetried   prometheus.Counter
	TaskDuration   prometheus.Histogram
	PhaseDuration  *prometheus.HistogramVec

	// Queue
	MessagesReceived prometheus.Counter
	MessagesDropped  *prometheus.CounterVec

	// Notifications
	NotificationsPublished prometheus.Counter
	NotificationsFailed    prometheus.Counter

	// Model clients
	EmbeddingRequests prometheus.Counter
	EmbeddingFailures prometheus.Counter
	LLMRequests       prometheus.Counter
	LLMFailures       prometheus.Counter

	// Vector store
	ChunksStored   prometheus.Counter
	ChunksSearched prometheus.Counter
}

// NewMetrics creates a Metrics instance backed by its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		TasksStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_tasks_started_total",
			Help: "Total number of inference tasks picked up from the queue.",
		}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_tasks_completed_total",
			Help: "Total number of inference tasks that reached completed.",
		}),
		TasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_tasks_failed_total",
			Help: "Total number of inference tasks that reached error.",
		}),
		TasksRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_tasks_retried_total",
			Help: "Total number of task re-enqueues after a retryable failure.",
		}),
		TaskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "review_task_duration_seconds",
			Help:    "End to end task processing duration.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		PhaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "review_phase_duration_seconds",
			Help:    "Per phase processing duration.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"phase"}),

		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_queue_messages_received_total",
			Help: "Total number of messages fetched from the task queue.",
		}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "review_queue_messages_dropped_total",
			Help: "Total number of queue messages dropped without processing.",
		}, []string{"reason"}),

		NotificationsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_notifications_published_total",
			Help: "Total number of task events published to the notification topic.",
		}),
		NotificationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_notifications_failed_total",
			Help: "Total number of notification publish attempts that failed.",
		}),

		EmbeddingRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_embedding_requests_total",
			Help: "Total number of embedding requests issued.",
		}),
		EmbeddingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_embedding_failures_total",
			Help: "Total number of embedding requests that failed.",
		}),
		LLMRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_llm_requests_total",
			Help: "Total number of LLM generation requests issued.",
		}),
		LLMFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_llm_failures_total",
			Help: "Total number of LLM generation requests that failed.",
		}),

		ChunksStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_chunks_stored_total",
			Help: "Total number of chunks written to the vector store.",
		}),
		ChunksSearched: factory.NewCounter(prometheus.CounterOpts{
			Name: "review_chunk_searches_total",
			Help: "Total number of similarity searches executed.",
		}),
	}
}

// Registry returns the underlying Prometheus registry for exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
