package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/asr"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/llm"
	"github.com/dyparkkk-lg/meeting-ai/internal/storage"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// countingTranscriber wraps the fixture and counts invocations.
type countingTranscriber struct {
	mu    sync.Mutex
	calls int
	fail  error
	inner asr.Transcriber
}

func (c *countingTranscriber) Name() string { return "counting" }

func (c *countingTranscriber) Transcribe(ctx context.Context, audioURL string, opts asr.Options) (asr.Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.fail != nil {
		return asr.Result{}, c.fail
	}
	return c.inner.Transcribe(ctx, audioURL, opts)
}

func (c *countingTranscriber) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// countingAnalyzer wraps the fixture and counts invocations.
type countingAnalyzer struct {
	mu         sync.Mutex
	calls      int
	transcript string
	inner      llm.Analyzer
}

func (c *countingAnalyzer) Name() string { return "counting" }

func (c *countingAnalyzer) Analyze(ctx context.Context, transcript string, opts llm.Options) (model.AnalysisResult, error) {
	c.mu.Lock()
	c.calls++
	c.transcript = transcript
	c.mu.Unlock()
	return c.inner.Analyze(ctx, transcript, opts)
}

func (c *countingAnalyzer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// recordingScheduler collects enqueued stages without dispatching.
type recordingScheduler struct {
	mu       sync.Mutex
	enqueued []model.Stage
}

func (r *recordingScheduler) Enqueue(ctx context.Context, stage model.Stage, meetingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued = append(r.enqueued, stage)
	return nil
}

func (r *recordingScheduler) stages() []model.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Stage, len(r.enqueued))
	copy(out, r.enqueued)
	return out
}

type stubObjects struct{}

func (stubObjects) GetReadableURL(ctx context.Context, objectKey string) (string, error) {
	return "https://example.test/" + objectKey, nil
}

type fixture struct {
	store       *storage.MemoryStore
	transcriber *countingTranscriber
	analyzer    *countingAnalyzer
	sched       *recordingScheduler
	pipeline    *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       storage.NewMemoryStore(),
		transcriber: &countingTranscriber{inner: asr.NewFixture()},
		analyzer:    &countingAnalyzer{inner: llm.NewFixture()},
		sched:       &recordingScheduler{},
	}
	f.pipeline = New(f.store, stubObjects{}, f.transcriber, f.analyzer, f.sched, "en", testLogger())
	return f
}

func (f *fixture) seedMeeting(t *testing.T, stage model.Stage) string {
	t.Helper()
	ctx := context.Background()
	m := &model.Meeting{ID: "m-1", Title: "Sprint Planning"}
	if err := f.store.CreateMeeting(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetAudioObject(ctx, m.ID, "meetings/m-1/audio.webm"); err != nil {
		t.Fatal(err)
	}
	if stage != model.StageCreated {
		if err := f.store.UpdateMeetingStage(ctx, m.ID, stage, ""); err != nil {
			t.Fatal(err)
		}
	}
	return m.ID
}

func TestTranscribeHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageUploaded)

	if err := f.pipeline.RunStage(ctx, model.StageTranscriptReady, id); err != nil {
		t.Fatal(err)
	}

	segments, err := f.store.GetTranscript(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) == 0 {
		t.Fatal("no transcript stored")
	}
	m, _ := f.store.GetMeeting(ctx, id)
	if m.Stage != model.StageTranscriptReady {
		t.Fatalf("stage = %s, want TRANSCRIPT_READY", m.Stage)
	}
	if got := f.sched.stages(); len(got) != 1 || got[0] != model.StageAnalysisReady {
		t.Fatalf("enqueued = %v, want [ANALYSIS_READY]", got)
	}
}

func TestTranscribeRedeliverySkipsWorkAndRepairsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageUploaded)

	if err := f.pipeline.RunStage(ctx, model.StageTranscriptReady, id); err != nil {
		t.Fatal(err)
	}
	// Duplicate delivery of the same stage after the work is done.
	if err := f.pipeline.RunStage(ctx, model.StageTranscriptReady, id); err != nil {
		t.Fatal(err)
	}

	if f.transcriber.count() != 1 {
		t.Fatalf("transcriber called %d times, want 1", f.transcriber.count())
	}
	// Both deliveries push the successor, so a lost first enqueue is repaired.
	got := f.sched.stages()
	if len(got) != 2 || got[0] != model.StageAnalysisReady || got[1] != model.StageAnalysisReady {
		t.Fatalf("enqueued = %v, want two ANALYSIS_READY", got)
	}
}

func TestTranscribeRedeliveryAfterLaterProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageAnalysisReady)

	// A stale transcription delivery arrives after analysis already ran.
	if err := f.pipeline.RunStage(ctx, model.StageTranscriptReady, id); err != nil {
		t.Fatal(err)
	}

	if f.transcriber.count() != 0 {
		t.Fatal("transcriber must not run on a satisfied stage")
	}
	if got := f.sched.stages(); len(got) != 1 || got[0] != model.StageAnalysisReady {
		t.Fatalf("enqueued = %v, want [ANALYSIS_READY]", got)
	}
}

func TestAnalyzeHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageTranscriptReady)
	if err := f.store.UpsertTranscript(ctx, id, []model.Segment{
		{StartMs: 0, EndMs: 5000, Text: "hello", Speaker: "Speaker 1"},
		{StartMs: 5000, EndMs: 9000, Text: "world"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.pipeline.RunStage(ctx, model.StageAnalysisReady, id); err != nil {
		t.Fatal(err)
	}

	if f.analyzer.count() != 1 {
		t.Fatalf("analyzer called %d times, want 1", f.analyzer.count())
	}
	want := "[Speaker 1] hello\nworld"
	if f.analyzer.transcript != want {
		t.Fatalf("flattened transcript = %q, want %q", f.analyzer.transcript, want)
	}
	if _, err := f.store.GetAnalysis(ctx, id); err != nil {
		t.Fatalf("analysis not stored: %v", err)
	}
	m, _ := f.store.GetMeeting(ctx, id)
	if m.Stage != model.StageAnalysisReady {
		t.Fatalf("stage = %s, want ANALYSIS_READY", m.Stage)
	}
	if got := f.sched.stages(); len(got) != 1 || got[0] != model.StageDocumentReady {
		t.Fatalf("enqueued = %v, want [DOCUMENT_READY]", got)
	}
}

func TestAnalyzeMissingTranscriptIsPrecondition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageUploaded)

	err := f.pipeline.RunStage(ctx, model.StageAnalysisReady, id)
	if err == nil {
		t.Fatal("expected error for missing transcript")
	}
	if !IsPrecondition(err) {
		t.Fatalf("error %v is not a precondition error", err)
	}
	if f.analyzer.count() != 0 {
		t.Fatal("analyzer must not run without a transcript")
	}
}

func TestRenderCompletesMeeting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageAnalysisReady)
	if err := f.store.UpsertTranscript(ctx, id, []model.Segment{
		{StartMs: 0, EndMs: 5000, Text: "hello", Speaker: "A"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.UpsertAnalysis(ctx, id, model.AnalysisResult{
		OverallSummary: []string{"short meeting"},
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.pipeline.RunStage(ctx, model.StageDocumentReady, id); err != nil {
		t.Fatal(err)
	}

	doc, err := f.store.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	if !strings.Contains(doc.Content, "# Sprint Planning") {
		t.Error("document missing meeting title")
	}
	m, _ := f.store.GetMeeting(ctx, id)
	if m.Stage != model.StageComplete {
		t.Fatalf("stage = %s, want COMPLETE", m.Stage)
	}
	// Rendering is terminal; nothing further is enqueued.
	if got := f.sched.stages(); len(got) != 0 {
		t.Fatalf("enqueued = %v, want none", got)
	}
}

func TestFailedMeetingDropsStages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageFailed)

	if err := f.pipeline.RunStage(ctx, model.StageTranscriptReady, id); err != nil {
		t.Fatal(err)
	}
	if f.transcriber.count() != 0 {
		t.Fatal("transcriber must not run for a failed meeting")
	}
	if got := f.sched.stages(); len(got) != 0 {
		t.Fatalf("enqueued = %v, want none", got)
	}
}

func TestTranscribeFailurePropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageUploaded)
	f.transcriber.fail = errors.New("backend down")

	err := f.pipeline.RunStage(ctx, model.StageTranscriptReady, id)
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Fatalf("err = %v, want wrapped backend failure", err)
	}
	m, _ := f.store.GetMeeting(ctx, id)
	if m.Stage != model.StageUploaded {
		t.Fatalf("stage moved to %s on failure, must stay UPLOADED", m.Stage)
	}
}

func TestMarkFailedRecordsCause(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageUploaded)

	if err := f.pipeline.MarkFailed(ctx, id, errors.New("transcription exhausted retries")); err != nil {
		t.Fatal(err)
	}
	m, _ := f.store.GetMeeting(ctx, id)
	if m.Stage != model.StageFailed {
		t.Fatalf("stage = %s, want FAILED", m.Stage)
	}
	if m.ErrorMessage != "transcription exhausted retries" {
		t.Fatalf("errorMessage = %q", m.ErrorMessage)
	}
}

func TestMarkFailedLeavesTerminalMeetings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.seedMeeting(t, model.StageComplete)

	if err := f.pipeline.MarkFailed(ctx, id, errors.New("late failure")); err != nil {
		t.Fatal(err)
	}
	m, _ := f.store.GetMeeting(ctx, id)
	if m.Stage != model.StageComplete {
		t.Fatalf("completed meeting regressed to %s", m.Stage)
	}
}

// chainScheduler runs each enqueued stage synchronously, driving the
// whole pipeline to completion in one call.
type chainScheduler struct {
	pipeline *Pipeline
}

func (c *chainScheduler) Enqueue(ctx context.Context, stage model.Stage, meetingID string) error {
	return c.pipeline.RunStage(ctx, stage, meetingID)
}

func TestFullChain(t *testing.T) {
	store := storage.NewMemoryStore()
	sched := &chainScheduler{}
	p := New(store, stubObjects{}, asr.NewFixture(), llm.NewFixture(), sched, "en", testLogger())
	sched.pipeline = p

	ctx := context.Background()
	m := &model.Meeting{ID: "m-chain", Title: "All Hands"}
	if err := store.CreateMeeting(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAudioObject(ctx, m.ID, "meetings/m-chain/audio.mp3"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateMeetingStage(ctx, m.ID, model.StageUploaded, ""); err != nil {
		t.Fatal(err)
	}

	if err := p.RunStage(ctx, model.StageTranscriptReady, m.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetMeeting(ctx, m.ID)
	if got.Stage != model.StageComplete {
		t.Fatalf("stage = %s, want COMPLETE", got.Stage)
	}
	doc, err := store.GetDocument(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, heading := range []string{"## Summary", "## Decisions", "## Action Items", "## Risks", "## Open Questions", "## Transcript"} {
		if !strings.Contains(doc.Content, heading) {
			t.Errorf("document missing %q", heading)
		}
	}
}
