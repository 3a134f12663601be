// Package vectorstore implements pgvector-backed chunk storage and
// similarity search for manuscript embeddings.
package vectorstore

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeVector renders a float32 slice in the pgvector text input format,
// e.g. "[0.1,0.2,0.3]".
func EncodeVector(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v)*10 + 2)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

// DecodeVector parses the pgvector text output format back into a slice.
func DecodeVector(s string) ([]float32, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal: %q", s)
	}

	inner := trimmed[1 : len(trimmed)-1]
	if inner == "" {
		return []float32{}, nil
	}

	parts := strings.Split(inner, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("malformed vector element %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
