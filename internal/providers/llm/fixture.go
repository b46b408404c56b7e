package llm

import (
	"context"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

// Fixture returns a canned analysis matching the fixture transcriber's
// meeting, for offline use and tests.
type Fixture struct{}

var _ Analyzer = (*Fixture)(nil)

// NewFixture constructs the fixture analyzer.
func NewFixture() *Fixture { return &Fixture{} }

// Name identifies the provider.
func (f *Fixture) Name() string { return "fixture" }

// Analyze ignores the transcript and returns the canned result.
func (f *Fixture) Analyze(ctx context.Context, transcript string, opts Options) (model.AnalysisResult, error) {
	speaker2 := "Speaker 2"
	speaker3 := "Speaker 3"
	return model.AnalysisResult{
		OverallSummary: []string{
			"Discussed the schedule and owner assignments for the new project's MVP.",
			"Agreed to complete the MVP by the end of January.",
			"Backend (Jordan) and frontend (Casey) owners were assigned.",
			"Identified a risk around the unconfirmed external API integration schedule.",
		},
		Decisions: []model.Decision{
			{
				Decision: "Complete the MVP by the end of January",
				Evidence: []model.Evidence{
					{StartMs: 15000, EndMs: 30000, Quote: "we decided to finish the MVP by the end of January."},
				},
			},
			{
				Decision: "Jordan owns the backend work, Casey owns the frontend",
				Evidence: []model.Evidence{
					{StartMs: 30000, EndMs: 45000, Quote: "Jordan will own the backend work and Casey will own the frontend."},
				},
			},
			{
				Decision: "Build the test environment on Docker",
				Evidence: []model.Evidence{
					{StartMs: 105000, EndMs: 120000, Quote: "We're setting it up on Docker."},
				},
			},
		},
		ActionItems: []model.ActionItem{
			{
				Task:     "Finish the API documentation",
				Assignee: nil, // not clearly named in the transcript
				DueDate:  nil, // "next Friday" without a concrete date
				Priority: model.PriorityP1,
				Evidence: []model.Evidence{
					{StartMs: 45000, EndMs: 60000, Quote: "Please finish the API documentation by next Friday."},
				},
			},
			{
				Task:     "Confirm and share the external API integration schedule",
				Assignee: &speaker2,
				DueDate:  nil,
				Priority: model.PriorityP1,
				Evidence: []model.Evidence{
					{StartMs: 75000, EndMs: 90000, Quote: "I'll check on that and share an update by tomorrow."},
				},
			},
			{
				Task:     "Finish the test environment setup",
				Assignee: &speaker3,
				DueDate:  nil,
				Priority: model.PriorityP2,
				Evidence: []model.Evidence{
					{StartMs: 105000, EndMs: 120000, Quote: "We're setting it up on Docker. It should be done within the week."},
				},
			},
		},
		Risks: []model.Risk{
			{
				Description: "External API integration schedule unconfirmed",
				Severity:    model.SeverityMedium,
				Evidence: []model.Evidence{
					{StartMs: 60000, EndMs: 75000, Quote: "the external API integration schedule is still unconfirmed."},
				},
			},
		},
		OpenQuestions: []model.OpenQuestion{
			{
				Question: "When will the external API integration schedule be confirmed?",
				Evidence: []model.Evidence{
					{StartMs: 60000, EndMs: 75000, Quote: "the external API integration schedule is still unconfirmed."},
				},
			},
		},
	}, nil
}
