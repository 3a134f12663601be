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

// Generator produces raw model output for an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NewGenerator creates the generator selected by configuration: an offline
// generator when OfflineMode is set, otherwise an Ollama-backed one.
func NewGenerator(cfg *config.LLMConfig, logger zerolog.Logger, metrics *observability.Metrics) (Generator, error) {
	switch cfg.OfflineMode {
	case "":
		return NewOllamaGenerator(cfg, logger, metrics), nil
	case "demo", "echo":
		logger.Warn().Str("mode", cfg.OfflineMode).Msg("using offline generator")
		return &OfflineGenerator{Mode: cfg.OfflineMode}, nil
	default:
		return nil, fmt.Errorf("unknown offline mode %q", cfg.OfflineMode)
	}
}

// OfflineGenerator produces output without any backend. Mode "demo" returns
// a fixed well-formed review; mode "echo" returns the prompt itself, which
// exercises the degraded recovery path end to end.
type OfflineGenerator struct {
	Mode string
}

// demoReview is the canned response returned in demo mode.
const demoReview = `{
  "score": 7,
  "summary": "The manuscript is clearly structured and the contribution is stated early. The evaluation section would benefit from a stronger baseline comparison.",
  "typos": ["Section 3: 'recieve' should be 'receive'"],
  "suggestions": ["Add a baseline comparison against the most recent published method.", "State the dataset split explicitly in Section 4."]
}`

// Generate returns offline content immediately.
func (g *OfflineGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if g.Mode == "echo" {
		return echoParagraphs(prompt), nil
	}
	return demoReview, nil
}

// echoParagraphs chunks the prompt into its paragraphs, mimicking the
// piecewise output of a streaming backend, and reassembles them.
func echoParagraphs(prompt string) string {
	var paragraphs []string
	for _, p := range strings.Split(prompt, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// OllamaGenerator calls an Ollama-compatible generation endpoint.
type OllamaGenerator struct {
	httpClient *http.Client
	baseURL    string
	model      string
	limiter    *rate.Limiter
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewOllamaGenerator creates a generator backed by an Ollama-compatible API.
func NewOllamaGenerator(cfg *config.LLMConfig, logger zerolog.Logger, metrics *observability.Metrics) *OllamaGenerator {
	return &OllamaGenerator{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:     logger.With().Str("component", "generator").Logger(),
		metrics:    metrics,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate submits a prompt and returns the model's raw text response.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", domain.NewValidationError("prompt", "prompt is required")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("generation rate limiter: %w", err)
	}

	if g.metrics != nil {
		g.metrics.LLMRequests.Inc()
	}

	body, err := json.Marshal(generateRequest{Model: g.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		if g.metrics != nil {
			g.metrics.LLMFailures.Inc()
		}
		return "", &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if g.metrics != nil {
			g.metrics.LLMFailures.Inc()
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(snippet))}
	}

	var payload generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if g.metrics != nil {
			g.metrics.LLMFailures.Inc()
		}
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}

	g.logger.Debug().
		Int("prompt_len", len(prompt)).
		Int("response_len", len(payload.Response)).
		Dur("elapsed", time.Since(start)).
		Msg("generation finished")

	return payload.Response, nil
}
