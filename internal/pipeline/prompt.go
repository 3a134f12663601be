package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// excerptTruncationMarker ends a manuscript excerpt cut at the length cap.
const excerptTruncationMarker = "\n... (manuscript truncated)"

// PromptBuilder assembles the generation prompt. Sections appear in a fixed
// order and empty sections are omitted entirely.
type PromptBuilder struct {
	excerptMaxLen int
}

// NewPromptBuilder creates a prompt builder capping the manuscript excerpt
// at excerptMaxLen runes.
func NewPromptBuilder(excerptMaxLen int) *PromptBuilder {
	return &PromptBuilder{excerptMaxLen: excerptMaxLen}
}

// Build renders the full prompt for a manuscript and its review context.
func (b *PromptBuilder) Build(rc *ReviewContext, manuscript string) string {
	var sb strings.Builder

	sb.WriteString("You are an experienced academic reviewer. Review the manuscript below ")
	sb.WriteString("and respond with a single JSON object following the output format exactly.\n")

	b.writeRules(&sb, rc)
	b.writePriorFeedback(&sb, rc)
	b.writeDiff(&sb, rc)
	b.writeRelatedExcerpts(&sb, rc)
	b.writeOutputFormat(&sb, rc)
	b.writeManuscript(&sb, manuscript)

	return sb.String()
}

func (b *PromptBuilder) writeRules(sb *strings.Builder, rc *ReviewContext) {
	if len(rc.Rules) == 0 {
		return
	}

	sb.WriteString("\n## Conference Rules\n")
	for _, rule := range rc.Rules {
		fmt.Fprintf(sb, "### %s\n", rule.Name)

		// Deterministic ordering keeps prompts reproducible.
		keys := make([]string, 0, len(rule.FormatRules))
		for k := range rule.FormatRules {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(sb, "- %s: %s\n", k, rule.FormatRules[k])
		}

		if rule.StyleGuide != "" {
			fmt.Fprintf(sb, "Style guide: %s\n", rule.StyleGuide)
		}
	}
}

func (b *PromptBuilder) writePriorFeedback(sb *strings.Builder, rc *ReviewContext) {
	if rc.PriorFeedback == nil {
		return
	}

	fb := rc.PriorFeedback
	sb.WriteString("\n## Previous Review\n")
	fmt.Fprintf(sb, "Previous overall score: %d\n", fb.Scores.Overall)
	if fb.Summary != "" {
		fmt.Fprintf(sb, "Previous summary: %s\n", fb.Summary)
	}
	for _, s := range fb.Comments.Suggestions {
		fmt.Fprintf(sb, "- Previous suggestion: %s\n", s)
	}
}

func (b *PromptBuilder) writeDiff(sb *strings.Builder, rc *ReviewContext) {
	if rc.Diff == "" {
		return
	}

	sb.WriteString("\n## Changes Since Previous Version\n```diff\n")
	sb.WriteString(rc.Diff)
	sb.WriteString("\n```\n")
}

func (b *PromptBuilder) writeRelatedExcerpts(sb *strings.Builder, rc *ReviewContext) {
	if len(rc.RelatedChunks) == 0 {
		return
	}

	sb.WriteString("\n## Related Excerpts From Other Manuscripts\n")
	for i, hit := range rc.RelatedChunks {
		title := "untitled section"
		if hit.Chunk.SectionTitle != nil && *hit.Chunk.SectionTitle != "" {
			title = *hit.Chunk.SectionTitle
		}
		fmt.Fprintf(sb, "%d. [%s] %s\n", i+1, title, hit.Chunk.Content)
	}
}

func (b *PromptBuilder) writeManuscript(sb *strings.Builder, manuscript string) {
	sb.WriteString("\n## Manuscript\n")

	runes := []rune(manuscript)
	if b.excerptMaxLen > 0 && len(runes) > b.excerptMaxLen {
		sb.WriteString(string(runes[:b.excerptMaxLen]))
		sb.WriteString(excerptTruncationMarker)
		sb.WriteByte('\n')
		return
	}
	sb.WriteString(manuscript)
	sb.WriteByte('\n')
}

// writeOutputFormat renders the JSON schema the model must follow. The
// improvements_from_previous field only appears for resubmissions, so
// first-round reviews never ask the model to invent prior context.
func (b *PromptBuilder) writeOutputFormat(sb *strings.Builder, rc *ReviewContext) {
	sb.WriteString("\n## Output Format\nRespond with exactly this JSON structure:\n```json\n{\n")
	sb.WriteString(`  "score": <integer 0-10>,` + "\n")
	sb.WriteString(`  "summary": "<overall assessment>",` + "\n")
	sb.WriteString(`  "typos": ["<typo with location>"],` + "\n")
	if rc.IsResubmission() {
		sb.WriteString(`  "suggestions": ["<actionable suggestion>"],` + "\n")
		sb.WriteString(`  "improvements_from_previous": ["<improvement since the last version>"]` + "\n")
	} else {
		sb.WriteString(`  "suggestions": ["<actionable suggestion>"]` + "\n")
	}
	sb.WriteString("}\n```\n")
}
