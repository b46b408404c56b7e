package asr

import (
	"context"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

// Fixture returns a canned project-planning meeting. It keeps the
// pipeline runnable offline and gives the tests deterministic input.
type Fixture struct{}

var _ Transcriber = (*Fixture)(nil)

// NewFixture constructs the fixture transcriber.
func NewFixture() *Fixture { return &Fixture{} }

// Name identifies the provider.
func (f *Fixture) Name() string { return "fixture" }

// Transcribe ignores the audio and returns the canned segments.
func (f *Fixture) Transcribe(ctx context.Context, audioURL string, opts Options) (Result, error) {
	language := opts.LanguageHint
	if language == "" {
		language = "en"
	}
	segments := []model.Segment{
		{StartMs: 0, EndMs: 5000, Text: "Hello everyone, let's get started.", Speaker: "Speaker 1"},
		{StartMs: 5000, EndMs: 15000, Text: "Today we need to cover the new project schedule and owner assignments.", Speaker: "Speaker 2"},
		{StartMs: 15000, EndMs: 30000, Text: "On the schedule, we decided to finish the MVP by the end of January.", Speaker: "Speaker 1"},
		{StartMs: 30000, EndMs: 45000, Text: "Jordan will own the backend work and Casey will own the frontend.", Speaker: "Speaker 2"},
		{StartMs: 45000, EndMs: 60000, Text: "Sounds good. Please finish the API documentation by next Friday.", Speaker: "Speaker 1"},
		{StartMs: 60000, EndMs: 75000, Text: "One concern: the external API integration schedule is still unconfirmed.", Speaker: "Speaker 3"},
		{StartMs: 75000, EndMs: 90000, Text: "I'll check on that and share an update by tomorrow.", Speaker: "Speaker 2"},
		{StartMs: 90000, EndMs: 105000, Text: "How is the test environment setup going?", Speaker: "Speaker 1"},
		{StartMs: 105000, EndMs: 120000, Text: "We're setting it up on Docker. It should be done within the week.", Speaker: "Speaker 3"},
		{StartMs: 120000, EndMs: 135000, Text: "Great, then let's wrap up here. Thanks everyone.", Speaker: "Speaker 1"},
	}
	return Result{
		Segments:   segments,
		Language:   language,
		DurationMs: 135000,
	}, nil
}
