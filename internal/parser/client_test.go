package parser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakbase/paper-review-service/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestParseModernPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/parse", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "/data/paper.pdf", req["file_path"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": "Abstract. We present...",
			"meta":    map[string]interface{}{"num_pages": 12, "file_type": "pdf"},
			"chunks": []map[string]interface{}{
				{"index": 0, "section_title": "Abstract", "page_number": 1, "content": "We present..."},
			},
		})
	})

	result, err := client.Parse(context.Background(), "/data/paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Abstract. We present...", result.Content)
	assert.Equal(t, 12, result.NumPages)
	assert.Equal(t, "pdf", result.FileType)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, "Abstract", result.Chunks[0].SectionTitle)
}

func TestParseLegacyPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":       "flat extracted text",
			"page_count": 7,
		})
	})

	result, err := client.Parse(context.Background(), "/data/old.pdf")
	require.NoError(t, err)
	assert.Equal(t, "flat extracted text", result.Content)
	assert.Equal(t, 7, result.NumPages)
	assert.Empty(t, result.Chunks)
}

func TestParseServerErrorIsServiceUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "parser crashed", http.StatusInternalServerError)
	})

	_, err := client.Parse(context.Background(), "/data/paper.pdf")
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestParseClientErrorIsNotServiceUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported file type", http.StatusUnprocessableEntity)
	})

	_, err := client.Parse(context.Background(), "/data/paper.xyz")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestParseEmptyContentFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"content": ""})
	})

	_, err := client.Parse(context.Background(), "/data/blank.pdf")
	assert.ErrorContains(t, err, "empty content")
}

func TestParseRequiresFilePath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := client.Parse(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
