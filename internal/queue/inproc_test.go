package queue

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
	"github.com/dyparkkk-lg/meeting-ai/internal/pipeline"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/asr"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/llm"
	"github.com/dyparkkk-lg/meeting-ai/internal/storage"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// blockingRunner parks every job until released, counting submissions.
type blockingRunner struct {
	mu      sync.Mutex
	runs    int
	release chan struct{}
}

func (r *blockingRunner) RunStage(ctx context.Context, stage model.Stage, meetingID string) error {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return nil
}

func (r *blockingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestInProcCoalescesPendingJobs(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	s := NewInProcScheduler(runner, nil, 1, DefaultMaxAttempts, time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	// First job occupies the single worker.
	if err := s.Enqueue(ctx, model.StageTranscriptReady, "busy"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, func() bool { return runner.count() == 1 })

	// Same identity submitted repeatedly while waiting: one unit of work.
	for i := 0; i < 5; i++ {
		if err := s.Enqueue(ctx, model.StageTranscriptReady, "queued"); err != nil {
			t.Fatal(err)
		}
	}
	close(runner.release)
	waitFor(t, time.Second, func() bool { return runner.count() == 2 })

	// Give any stray duplicate a chance to surface.
	time.Sleep(20 * time.Millisecond)
	if got := runner.count(); got != 2 {
		t.Fatalf("runner invoked %d times, want 2", got)
	}
}

func TestInProcRejectsNonRunnableStage(t *testing.T) {
	s := NewInProcScheduler(&blockingRunner{release: make(chan struct{})}, nil, 1, 1, time.Millisecond, testLogger())
	if err := s.Enqueue(context.Background(), model.StageComplete, "m"); err == nil {
		t.Fatal("COMPLETE is not a runnable stage")
	}
}

// failingRunner fails every attempt with the same error.
type failingRunner struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (r *failingRunner) RunStage(ctx context.Context, stage model.Stage, meetingID string) error {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	return r.err
}

func (r *failingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func TestInProcRetriesToExhaustion(t *testing.T) {
	runner := &failingRunner{err: errors.New("always down")}
	var (
		mu     sync.Mutex
		failed []string
		cause  error
	)
	onExhausted := func(ctx context.Context, meetingID string, err error) error {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, meetingID)
		cause = err
		return nil
	}
	s := NewInProcScheduler(runner, onExhausted, 2, 3, time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	if err := s.Enqueue(ctx, model.StageTranscriptReady, "m-1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 1
	})

	if got := runner.count(); got != 3 {
		t.Fatalf("runner invoked %d times, want 3 (max attempts)", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if failed[0] != "m-1" {
		t.Fatalf("failure handler got meeting %q", failed[0])
	}
	if !errors.Is(cause, runner.err) {
		t.Fatalf("failure cause = %v", cause)
	}
}

// failingTranscriber never succeeds.
type failingTranscriber struct {
	mu   sync.Mutex
	runs int
}

func (f *failingTranscriber) Name() string { return "failing" }

func (f *failingTranscriber) Transcribe(ctx context.Context, audioURL string, opts asr.Options) (asr.Result, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return asr.Result{}, &asr.UpstreamError{Provider: "failing", Status: 503, Body: "unavailable"}
}

// countingAnalyzer records whether analysis was ever attempted.
type countingAnalyzer struct {
	mu   sync.Mutex
	runs int
}

func (c *countingAnalyzer) Name() string { return "counting" }

func (c *countingAnalyzer) Analyze(ctx context.Context, transcript string, opts llm.Options) (model.AnalysisResult, error) {
	c.mu.Lock()
	c.runs++
	c.mu.Unlock()
	return llm.NewFixture().Analyze(ctx, transcript, opts)
}

type stubObjects struct{}

func (stubObjects) GetReadableURL(ctx context.Context, objectKey string) (string, error) {
	return "https://example.test/" + objectKey, nil
}

// A transcription backend that is down for good must exhaust its retry
// budget, push the meeting into FAILED with the final error recorded,
// and never let analysis run.
func TestInProcExhaustionFailsMeeting(t *testing.T) {
	store := storage.NewMemoryStore()
	transcriber := &failingTranscriber{}
	analyzer := &countingAnalyzer{}
	log := testLogger()

	var p *pipeline.Pipeline
	s := NewInProcScheduler(nil, nil, 2, 5, time.Millisecond, log)
	p = pipeline.New(store, stubObjects{}, transcriber, analyzer, s, "en", log)
	s.SetRunner(p, p.MarkFailed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	m := &model.Meeting{ID: "m-doomed", Title: "Doomed"}
	if err := store.CreateMeeting(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := store.SetAudioObject(ctx, m.ID, "meetings/m-doomed/audio.webm"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateMeetingStage(ctx, m.ID, model.StageUploaded, ""); err != nil {
		t.Fatal(err)
	}

	if err := s.Enqueue(ctx, model.StageTranscriptReady, m.ID); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 5*time.Second, func() bool {
		got, err := store.GetMeeting(ctx, m.ID)
		return err == nil && got.Stage == model.StageFailed
	})

	got, err := store.GetMeeting(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ErrorMessage == "" {
		t.Error("failure must record the triggering error")
	}
	transcriber.mu.Lock()
	runs := transcriber.runs
	transcriber.mu.Unlock()
	if runs != 5 {
		t.Errorf("transcriber invoked %d times, want 5", runs)
	}
	analyzer.mu.Lock()
	analyzed := analyzer.runs
	analyzer.mu.Unlock()
	if analyzed != 0 {
		t.Error("analysis must never run when transcription fails")
	}
}
