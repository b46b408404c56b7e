// Package render turns a transcript and its analysis into the final
// markdown meeting record. It is a pure transform: no I/O, no stored
// state, identical input always yields identical output.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

const defaultTitle = "Meeting Notes"

// Markdown renders the meeting document. Every section heading is
// always present; empty sections carry an explicit placeholder instead
// of a bare heading. The generation timestamp is a parameter so callers
// (and tests) control the only non-content input.
func Markdown(title string, segments []model.Segment, analysis model.AnalysisResult, generatedAt time.Time) string {
	if title == "" {
		title = defaultTitle
	}
	var b strings.Builder

	// Frontmatter
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", title)
	fmt.Fprintf(&b, "generated: %s\n", generatedAt.UTC().Format(time.RFC3339))
	b.WriteString("status: COMPLETE\n")
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n\n", title)

	writeSummary(&b, analysis.OverallSummary)
	writeDecisions(&b, analysis.Decisions)
	writeActionItems(&b, analysis.ActionItems)
	writeRisks(&b, analysis.Risks)
	writeOpenQuestions(&b, analysis.OpenQuestions)
	writeTranscript(&b, segments)

	return b.String()
}

func writeSummary(b *strings.Builder, summary []string) {
	b.WriteString("## Summary\n\n")
	if len(summary) == 0 {
		b.WriteString("_No summary available._\n\n")
		return
	}
	for _, line := range summary {
		fmt.Fprintf(b, "- %s\n", line)
	}
	b.WriteString("\n")
}

func writeDecisions(b *strings.Builder, decisions []model.Decision) {
	b.WriteString("## Decisions\n\n")
	if len(decisions) == 0 {
		b.WriteString("_No decisions recorded._\n\n")
		return
	}
	for _, d := range decisions {
		fmt.Fprintf(b, "### %s\n", d.Decision)
		if len(d.Evidence) > 0 {
			b.WriteString("\n**Evidence:**\n")
			writeEvidence(b, d.Evidence, "")
		}
		b.WriteString("\n")
	}
}

func writeActionItems(b *strings.Builder, items []model.ActionItem) {
	b.WriteString("## Action Items\n\n")
	if len(items) == 0 {
		b.WriteString("_No action items._\n\n")
		return
	}
	b.WriteString("| Priority | Task | Assignee | Due Date |\n")
	b.WriteString("|----------|------|----------|----------|\n")
	for _, item := range items {
		priority := item.Priority
		if priority == "" {
			priority = model.PriorityP2
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", priority, item.Task, orDash(item.Assignee), orDash(item.DueDate))
	}
	b.WriteString("\n### Evidence\n\n")
	for i, item := range items {
		fmt.Fprintf(b, "**%d. %s**\n", i+1, item.Task)
		writeEvidence(b, item.Evidence, "")
		b.WriteString("\n")
	}
}

func writeRisks(b *strings.Builder, risks []model.Risk) {
	b.WriteString("## Risks\n\n")
	if len(risks) == 0 {
		b.WriteString("_No risks identified._\n\n")
		return
	}
	for _, r := range risks {
		fmt.Fprintf(b, "### [%s] %s\n", strings.ToUpper(r.Severity), r.Description)
		if len(r.Evidence) > 0 {
			b.WriteString("\n")
			writeEvidence(b, r.Evidence, "")
		}
		b.WriteString("\n")
	}
}

func writeOpenQuestions(b *strings.Builder, questions []model.OpenQuestion) {
	b.WriteString("## Open Questions\n\n")
	if len(questions) == 0 {
		b.WriteString("_No open questions._\n\n")
		return
	}
	for _, q := range questions {
		fmt.Fprintf(b, "- %s\n", q.Question)
		writeEvidence(b, q.Evidence, "  ")
	}
	b.WriteString("\n")
}

func writeTranscript(b *strings.Builder, segments []model.Segment) {
	b.WriteString("## Transcript\n\n")
	if len(segments) == 0 {
		b.WriteString("_No transcript available._\n")
		return
	}
	b.WriteString("<details>\n<summary>Full transcript</summary>\n\n```\n")
	for _, seg := range segments {
		speaker := ""
		if seg.Speaker != "" {
			speaker = fmt.Sprintf("[%s] ", seg.Speaker)
		}
		fmt.Fprintf(b, "%s %s%s\n", formatRange(seg.StartMs, seg.EndMs), speaker, seg.Text)
	}
	b.WriteString("```\n\n</details>\n")
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func writeEvidence(b *strings.Builder, evidence []model.Evidence, indent string) {
	for _, ev := range evidence {
		fmt.Fprintf(b, "%s> %q %s\n", indent, ev.Quote, formatRange(ev.StartMs, ev.EndMs))
	}
}

// formatRange renders [mm:ss - mm:ss], truncating sub-second precision.
// Minutes are not wrapped at the hour; a two-hour mark reads 120:00.
func formatRange(startMs, endMs int64) string {
	return fmt.Sprintf("[%s - %s]", formatTime(startMs), formatTime(endMs))
}

func formatTime(ms int64) string {
	totalSeconds := ms / 1000
	return fmt.Sprintf("%02d:%02d", totalSeconds/60, totalSeconds%60)
}
