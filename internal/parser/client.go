// Package parser provides an HTTP client for the manuscript parsing service.
package parser

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

	"github.com/nakbase/paper-review-service/internal/domain"
)

// maxErrorBodyLen bounds how much of an error response body is kept for
// diagnostics.
const maxErrorBodyLen = 512

// Client wraps the parsing service HTTP API with convenience methods.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// Config holds parser client configuration.
type Config struct {
	// BaseURL is the root URL of the parsing service (e.g., "http://localhost:8001").
	BaseURL string

	// Timeout is the per-request timeout. Parsing large manuscripts is slow,
	// so this is typically minutes rather than seconds.
	Timeout time.Duration
}

// NewClient creates a new parsing service client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("parser base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		logger:     logger.With().Str("component", "parser_client").Logger(),
	}, nil
}

// ParsedChunk is one bounded span of manuscript text returned by the parser.
type ParsedChunk struct {
	// Index is the zero-based position of the chunk within the document.
	Index int `json:"index"`

	// SectionTitle is the heading the chunk falls under, if detected.
	SectionTitle string `json:"section_title"`

	// PageNumber is the one-based page the chunk starts on, if known.
	PageNumber int `json:"page_number"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Location is parser-specific position metadata, passed through opaquely.
	Location json.RawMessage `json:"location,omitempty"`
}

// ParseResult holds the parsed representation of a manuscript file.
type ParseResult struct {
	// Content is the full extracted text.
	Content string

	// NumPages is the page count, zero when the parser could not determine it.
	NumPages int

	// FileType is the detected document type (e.g., "pdf").
	FileType string

	// Chunks are the pre-segmented spans, empty for legacy parser responses.
	Chunks []ParsedChunk
}

// parseResponse accepts both the current and the legacy parser payloads.
// Legacy parsers return {"text": ..., "page_count": ...} with no chunks.
type parseResponse struct {
	Content string `json:"content"`
	Meta    struct {
		NumPages int    `json:"num_pages"`
		FileType string `json:"file_type"`
	} `json:"meta"`
	Chunks []ParsedChunk `json:"chunks"`

	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
}

// Parse submits a stored file path to the parsing service and returns the
// extracted text. Transport failures and parser-side errors are wrapped as
// domain.ErrServiceUnavailable so callers can classify them as transient.
func (c *Client) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	if filePath == "" {
		return nil, domain.NewValidationError("file_path", "file path is required")
	}

	body, err := json.Marshal(map[string]string{"file_path": filePath})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parser request failed: %v: %w", err, domain.ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("parser returned %d: %s: %w",
				resp.StatusCode, strings.TrimSpace(string(snippet)), domain.ErrServiceUnavailable)
		}
		return nil, fmt.Errorf("parser rejected file %q: %d: %s",
			filePath, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode parser response: %w", err)
	}

	result := &ParseResult{
		Content:  payload.Content,
		NumPages: payload.Meta.NumPages,
		FileType: payload.Meta.FileType,
		Chunks:   payload.Chunks,
	}

	// Legacy parsers return flat text with a page count and no chunks.
	if result.Content == "" && payload.Text != "" {
		result.Content = payload.Text
		if result.NumPages == 0 {
			result.NumPages = payload.PageCount
		}
		c.logger.Debug().Str("file_path", filePath).Msg("parser returned legacy payload")
	}

	if result.Content == "" {
		return nil, fmt.Errorf("parser returned empty content for %q", filePath)
	}

	return result, nil
}
