package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nakbase/paper-review-service/internal/domain"
)

// degradedSummaryLen caps the raw-text excerpt used as the summary when no
// structured review can be recovered.
const degradedSummaryLen = 500

// degradedNote flags a review assembled from unparseable model output.
const degradedNote = "Automated review formatting failed; the full model output is preserved in raw_response."

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyRe  = regexp.MustCompile("(?s)```\\s*(.*?)```")
)

// ExtractJSON pulls the most likely JSON document out of raw model output.
// It tries, in order: a ```json fenced block, any fenced block, then the
// first balanced brace span. A candidate that is not valid JSON falls
// through to the next strategy. The boolean reports whether anything was
// found.
func ExtractJSON(raw string) (string, bool) {
	if m := fencedJSONRe.FindStringSubmatch(raw); m != nil {
		if candidate := strings.TrimSpace(m[1]); json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	if m := fencedAnyRe.FindStringSubmatch(raw); m != nil {
		if candidate := strings.TrimSpace(m[1]); json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	if candidate, ok := balancedBraces(raw); ok && json.Valid([]byte(candidate)) {
		return candidate, true
	}

	return "", false
}

// balancedBraces returns the first top-level {...} span in s. Braces inside
// JSON strings are ignored.
func balancedBraces(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseReview recovers a structured review from raw model output. It never
// fails: when no parseable JSON is found the result is a degraded document
// carrying the raw text, so a malformed model response still produces
// feedback instead of an error.
func ParseReview(raw string) *domain.ReviewDocument {
	if candidate, ok := ExtractJSON(raw); ok {
		var doc domain.ReviewDocument
		if err := json.Unmarshal([]byte(candidate), &doc); err == nil {
			if doc.Typos == nil {
				doc.Typos = []string{}
			}
			if doc.Suggestions == nil {
				doc.Suggestions = []string{}
			}
			return &doc
		}
	}

	return &domain.ReviewDocument{
		Score:       0,
		Summary:     truncate(strings.TrimSpace(raw), degradedSummaryLen),
		Typos:       []string{},
		Suggestions: []string{degradedNote},
		Raw:         raw,
	}
}

// truncate clamps s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
