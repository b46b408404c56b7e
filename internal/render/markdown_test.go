package render

import (
	"strings"
	"testing"
	"time"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

var renderTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

var sectionHeadings = []string{
	"## Summary",
	"## Decisions",
	"## Action Items",
	"## Risks",
	"## Open Questions",
	"## Transcript",
}

func TestMarkdownAllSectionsAlwaysPresent(t *testing.T) {
	doc := Markdown("", nil, model.AnalysisResult{}, renderTime)
	for _, heading := range sectionHeadings {
		if !strings.Contains(doc, heading) {
			t.Errorf("missing section %q", heading)
		}
	}
	for _, placeholder := range []string{
		"_No summary available._",
		"_No decisions recorded._",
		"_No action items._",
		"_No risks identified._",
		"_No open questions._",
		"_No transcript available._",
	} {
		if !strings.Contains(doc, placeholder) {
			t.Errorf("missing placeholder %q", placeholder)
		}
	}
	if !strings.Contains(doc, "# Meeting Notes") {
		t.Error("empty title should fall back to the default")
	}
}

func TestMarkdownDecisionWithEvidenceAndEmptyRisks(t *testing.T) {
	segments := []model.Segment{
		{StartMs: 0, EndMs: 5000, Text: "hello", Speaker: "A"},
	}
	analysis := model.AnalysisResult{
		Decisions: []model.Decision{
			{
				Decision: "Adopt the proposal",
				Evidence: []model.Evidence{{StartMs: 0, EndMs: 5000, Quote: "hello"}},
			},
		},
	}
	doc := Markdown("Kickoff", segments, analysis, renderTime)

	if !strings.Contains(doc, "### Adopt the proposal") {
		t.Error("decision block missing")
	}
	if !strings.Contains(doc, "[00:00 - 00:05]") {
		t.Error("evidence time range missing or misformatted")
	}
	if !strings.Contains(doc, "_No risks identified._") {
		t.Error("empty risks section must render its placeholder")
	}
	if !strings.Contains(doc, "[A] hello") {
		t.Error("transcript segment missing speaker label")
	}
}

func TestMarkdownDeterministic(t *testing.T) {
	segments := []model.Segment{
		{StartMs: 0, EndMs: 61500, Text: "first", Speaker: "A"},
		{StartMs: 61500, EndMs: 125000, Text: "second", Speaker: "B"},
	}
	assignee := "Sam"
	analysis := model.AnalysisResult{
		OverallSummary: []string{"one", "two"},
		ActionItems: []model.ActionItem{
			{Task: "do the thing", Assignee: &assignee, Priority: model.PriorityP0},
		},
		Risks: []model.Risk{
			{Description: "might slip", Severity: model.SeverityHigh},
		},
	}
	a := Markdown("Weekly Sync", segments, analysis, renderTime)
	b := Markdown("Weekly Sync", segments, analysis, renderTime)
	if a != b {
		t.Fatal("identical input must yield identical output")
	}
}

func TestMarkdownTimeRangeTruncatesSubSecond(t *testing.T) {
	segments := []model.Segment{
		{StartMs: 61999, EndMs: 125400, Text: "x"},
	}
	doc := Markdown("t", segments, model.AnalysisResult{}, renderTime)
	if !strings.Contains(doc, "[01:01 - 02:05]") {
		t.Fatalf("sub-second precision not truncated:\n%s", doc)
	}
}

func TestMarkdownActionItemTable(t *testing.T) {
	due := "2026-09-01"
	analysis := model.AnalysisResult{
		ActionItems: []model.ActionItem{
			{Task: "write docs", DueDate: &due, Priority: model.PriorityP1},
		},
	}
	doc := Markdown("t", nil, analysis, renderTime)
	if !strings.Contains(doc, "| P1 | write docs | - | 2026-09-01 |") {
		t.Fatalf("action item row missing:\n%s", doc)
	}
	if !strings.Contains(doc, "**1. write docs**") {
		t.Error("per-item evidence block missing")
	}
}

func TestMarkdownRiskSeverityTag(t *testing.T) {
	analysis := model.AnalysisResult{
		Risks: []model.Risk{{Description: "slippage", Severity: model.SeverityHigh}},
	}
	doc := Markdown("t", nil, analysis, renderTime)
	if !strings.Contains(doc, "### [HIGH] slippage") {
		t.Fatalf("severity tag missing:\n%s", doc)
	}
}
