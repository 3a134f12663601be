package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffGeneratorEmptyWhenNoPrevious(t *testing.T) {
	gen := NewDiffGenerator(4000)

	diff, err := gen.Generate("", "current text")
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestDiffGeneratorEmptyWhenCurrentMissing(t *testing.T) {
	gen := NewDiffGenerator(4000)

	diff, err := gen.Generate("line one\nline two\n", "")
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestDiffGeneratorEmptyWhenIdentical(t *testing.T) {
	gen := NewDiffGenerator(4000)

	diff, err := gen.Generate("same text", "same text")
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestDiffGeneratorKeepsOnlyHeadersAndChanges(t *testing.T) {
	gen := NewDiffGenerator(4000)

	previous := "line one\nline two\nline three\nline four\n"
	current := "line one\nline 2\nline three\nline four\n"

	diff, err := gen.Generate(previous, current)
	require.NoError(t, err)

	assert.Contains(t, diff, "--- previous_version")
	assert.Contains(t, diff, "+++ current_version")
	assert.Contains(t, diff, "@@")
	assert.Contains(t, diff, "-line two")
	assert.Contains(t, diff, "+line 2")
	// Unchanged context lines are dropped.
	assert.NotContains(t, diff, "line three")
	assert.NotContains(t, diff, "line four")
}

func TestDiffGeneratorTruncatesAtCap(t *testing.T) {
	gen := NewDiffGenerator(200)

	var oldLines, newLines []string
	for i := 0; i < 100; i++ {
		oldLines = append(oldLines, "original content line with some length")
		newLines = append(newLines, "replaced content line with some length")
	}

	diff, err := gen.Generate(strings.Join(oldLines, "\n"), strings.Join(newLines, "\n"))
	require.NoError(t, err)

	assert.LessOrEqual(t, len(diff), 200+len(truncationMarker))
	assert.True(t, strings.HasSuffix(diff, truncationMarker))
}
