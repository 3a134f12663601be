// Package pipeline implements the inference state machine that turns a
// queued task into stored review feedback: parsing, context retrieval,
// prompt assembly and generation.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// truncationMarker ends a diff that was cut at the length cap.
const truncationMarker = "... (diff truncated)"

// DiffGenerator renders a compact unified diff between two manuscript
// revisions. Context lines are dropped so the prompt only carries hunk
// headers and actual changes.
type DiffGenerator struct {
	maxLen int
}

// NewDiffGenerator creates a diff generator capping output at maxLen bytes.
func NewDiffGenerator(maxLen int) *DiffGenerator {
	return &DiffGenerator{maxLen: maxLen}
}

// Generate diffs the previous revision against the current one. Identical
// inputs and a missing side both yield an empty diff; a blank current text
// would otherwise render as a wall of removals.
func (g *DiffGenerator) Generate(previous, current string) (string, error) {
	if previous == "" || current == "" || previous == current {
		return "", nil
	}

	unified := difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(current),
		FromFile: "previous_version",
		ToFile:   "current_version",
		Context:  1,
	}

	text, err := difflib.GetUnifiedDiffString(unified)
	if err != nil {
		return "", fmt.Errorf("failed to compute diff: %w", err)
	}

	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if !isChangeLine(line) {
			continue
		}
		if g.maxLen > 0 && sb.Len()+len(line)+1 > g.maxLen {
			sb.WriteString(truncationMarker)
			return sb.String(), nil
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}

// isChangeLine keeps file headers, hunk headers and added or removed lines,
// dropping unchanged context.
func isChangeLine(line string) bool {
	switch {
	case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		return true
	case strings.HasPrefix(line, "@@"):
		return true
	case strings.HasPrefix(line, "+"), strings.HasPrefix(line, "-"):
		return true
	default:
		return false
	}
}
