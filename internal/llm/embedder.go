package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nakbase/paper-review-service/internal/config"
	"github.com/nakbase/paper-review-service/internal/domain"
	"github.com/nakbase/paper-review-service/internal/observability"
)

// mockEmbeddingValue fills every component of a mock vector. A constant
// vector keeps similarity scores deterministic in offline runs.
const mockEmbeddingValue = 0.1

// Embedder turns text into a fixed-dimension embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// NewEmbedder creates the embedder selected by configuration: a mock
// embedder in offline mode, otherwise an Ollama-backed one.
func NewEmbedder(cfg *config.EmbeddingConfig, logger zerolog.Logger, metrics *observability.Metrics) Embedder {
	if cfg.MockMode {
		logger.Warn().Int("dimension", cfg.Dimension).Msg("using mock embedder")
		return &MockEmbedder{dimension: cfg.Dimension}
	}
	return NewOllamaEmbedder(cfg, logger, metrics)
}

// MockEmbedder returns a constant vector without calling any backend.
type MockEmbedder struct {
	dimension int
}

// NewMockEmbedder creates a mock embedder of the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	return &MockEmbedder{dimension: dimension}
}

// Embed returns a constant vector of the configured dimension.
func (m *MockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	v := make([]float32, m.dimension)
	for i := range v {
		v[i] = mockEmbeddingValue
	}
	return v, nil
}

// Dimension returns the embedding dimension.
func (m *MockEmbedder) Dimension() int { return m.dimension }

// OllamaEmbedder calls an Ollama-compatible embeddings endpoint.
type OllamaEmbedder struct {
	httpClient *http.Client
	baseURL    string
	model      string
	dimension  int
	limiter    *rate.Limiter
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewOllamaEmbedder creates an embedder backed by an Ollama-compatible API.
func NewOllamaEmbedder(cfg *config.EmbeddingConfig, logger zerolog.Logger, metrics *observability.Metrics) *OllamaEmbedder {
	return &OllamaEmbedder{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:     logger.With().Str("component", "embedder").Logger(),
		metrics:    metrics,
	}
}

// Dimension returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests an embedding for the given text. The returned vector is
// verified against the configured dimension.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, domain.NewValidationError("text", "embedding input is required")
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}

	if e.metrics != nil {
		e.metrics.EmbeddingRequests.Inc()
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		if e.metrics != nil {
			e.metrics.EmbeddingFailures.Inc()
		}
		return nil, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if e.metrics != nil {
			e.metrics.EmbeddingFailures.Inc()
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(snippet))}
	}

	var payload embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if e.metrics != nil {
			e.metrics.EmbeddingFailures.Inc()
		}
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}

	if len(payload.Embedding) != e.dimension {
		return nil, fmt.Errorf("backend returned %d dims, expected %d: %w",
			len(payload.Embedding), e.dimension, domain.ErrDimensionMismatch)
	}

	e.logger.Trace().
		Int("input_len", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("embedding computed")

	return payload.Embedding, nil
}
