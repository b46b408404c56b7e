// Package pipeline implements the stage state machine that advances a
// meeting through transcription, analysis and rendering.
//
// Each stage is delivered at least once by a scheduler; the machine is
// the idempotency backstop. Before doing any work a stage checks the
// meeting's persisted stage and, if the work is already done, skips
// straight to re-enqueueing the successor so a duplicate delivery can
// still repair a missing tail of the pipeline without re-invoking any
// provider.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/asr"
	"github.com/dyparkkk-lg/meeting-ai/internal/providers/llm"
	"github.com/dyparkkk-lg/meeting-ai/internal/render"
	"github.com/dyparkkk-lg/meeting-ai/internal/repository"
)

// RecordStore is the slice of the repository contract the machine needs.
type RecordStore interface {
	GetMeeting(ctx context.Context, meetingID string) (*model.Meeting, error)
	UpdateMeetingStage(ctx context.Context, meetingID string, stage model.Stage, errorMessage string) error
	GetTranscript(ctx context.Context, meetingID string) ([]model.Segment, error)
	UpsertTranscript(ctx context.Context, meetingID string, segments []model.Segment) error
	GetAnalysis(ctx context.Context, meetingID string) (*model.AnalysisResult, error)
	UpsertAnalysis(ctx context.Context, meetingID string, result model.AnalysisResult) error
	UpsertDocument(ctx context.Context, meetingID, content string) error
}

// ObjectStore issues readable URLs for stored audio. The transcription
// provider fetches the bytes; the machine never does.
type ObjectStore interface {
	GetReadableURL(ctx context.Context, objectKey string) (string, error)
}

// Scheduler accepts stage-advance requests. Submitting the same
// (stage, meeting) pair more than once before dispatch coalesces into a
// single unit of work; delivery is at least once.
type Scheduler interface {
	Enqueue(ctx context.Context, stage model.Stage, meetingID string) error
}

// PreconditionError marks a structurally impossible state, such as an
// analysis stage finding no transcript. Retrying cannot repair it
// (beyond shielding against a racing artifact write), so it rides the
// scheduler's normal retry budget into the failure path.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// successor maps each runnable stage to the stage enqueued after it
// completes (or after its idempotency skip). The render stage is last;
// nothing follows it.
var successor = map[model.Stage]model.Stage{
	model.StageTranscriptReady: model.StageAnalysisReady,
	model.StageAnalysisReady:   model.StageDocumentReady,
}

// Pipeline executes stages against the injected collaborators. All
// wiring is explicit constructor parameters.
type Pipeline struct {
	store       RecordStore
	objects     ObjectStore
	transcriber asr.Transcriber
	analyzer    llm.Analyzer
	sched       Scheduler
	defaultLang string
	log         *logrus.Logger
	now         func() time.Time
}

// New constructs a Pipeline.
func New(store RecordStore, objects ObjectStore, transcriber asr.Transcriber, analyzer llm.Analyzer, sched Scheduler, defaultLang string, log *logrus.Logger) *Pipeline {
	if defaultLang == "" {
		defaultLang = "en"
	}
	return &Pipeline{
		store:       store,
		objects:     objects,
		transcriber: transcriber,
		analyzer:    analyzer,
		sched:       sched,
		defaultLang: defaultLang,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RunStage executes exactly one stage's work for one meeting. A nil
// return means the stage is satisfied (freshly or already) and any
// successor has been enqueued; an error is handed back to the scheduler
// to retry or, on the last attempt, to fail the meeting.
func (p *Pipeline) RunStage(ctx context.Context, stage model.Stage, meetingID string) error {
	switch stage {
	case model.StageTranscriptReady:
		return p.runTranscribe(ctx, meetingID)
	case model.StageAnalysisReady:
		return p.runAnalyze(ctx, meetingID)
	case model.StageDocumentReady:
		return p.runRender(ctx, meetingID)
	default:
		return fmt.Errorf("stage %s is not runnable", stage)
	}
}

func (p *Pipeline) runTranscribe(ctx context.Context, meetingID string) error {
	log := p.stageLog(model.StageTranscriptReady, meetingID)
	meeting, skip, err := p.loadForStage(ctx, log, model.StageTranscriptReady, meetingID)
	if err != nil || skip {
		return err
	}
	if meeting.AudioObjectKey == "" {
		return &PreconditionError{Reason: fmt.Sprintf("meeting %s has no audio object", meetingID)}
	}

	audioURL, err := p.objects.GetReadableURL(ctx, meeting.AudioObjectKey)
	if err != nil {
		return fmt.Errorf("presign audio for %s: %w", meetingID, err)
	}
	result, err := p.transcriber.Transcribe(ctx, audioURL, asr.Options{
		LanguageHint: p.language(meeting),
		MediaType:    model.MediaTypeForKey(meeting.AudioObjectKey),
		Diarize:      true,
	})
	if err != nil {
		return fmt.Errorf("transcribe meeting %s: %w", meetingID, err)
	}

	if err := p.store.UpsertTranscript(ctx, meetingID, result.Segments); err != nil {
		return fmt.Errorf("store transcript for %s: %w", meetingID, err)
	}
	if err := p.store.UpdateMeetingStage(ctx, meetingID, model.StageTranscriptReady, ""); err != nil {
		return fmt.Errorf("advance meeting %s: %w", meetingID, err)
	}
	log.WithField("segments", len(result.Segments)).Info("transcription completed")
	return p.enqueueSuccessor(ctx, model.StageTranscriptReady, meetingID)
}

func (p *Pipeline) runAnalyze(ctx context.Context, meetingID string) error {
	log := p.stageLog(model.StageAnalysisReady, meetingID)
	meeting, skip, err := p.loadForStage(ctx, log, model.StageAnalysisReady, meetingID)
	if err != nil || skip {
		return err
	}

	segments, err := p.store.GetTranscript(ctx, meetingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &PreconditionError{Reason: fmt.Sprintf("transcript missing for meeting %s", meetingID)}
		}
		return fmt.Errorf("load transcript for %s: %w", meetingID, err)
	}

	result, err := p.analyzer.Analyze(ctx, flattenTranscript(segments), llm.Options{
		Language:     p.language(meeting),
		MeetingTitle: meeting.Title,
	})
	if err != nil {
		return fmt.Errorf("analyze meeting %s: %w", meetingID, err)
	}

	if err := p.store.UpsertAnalysis(ctx, meetingID, result); err != nil {
		return fmt.Errorf("store analysis for %s: %w", meetingID, err)
	}
	if err := p.store.UpdateMeetingStage(ctx, meetingID, model.StageAnalysisReady, ""); err != nil {
		return fmt.Errorf("advance meeting %s: %w", meetingID, err)
	}
	log.WithField("actions", len(result.ActionItems)).Info("analysis completed")
	return p.enqueueSuccessor(ctx, model.StageAnalysisReady, meetingID)
}

func (p *Pipeline) runRender(ctx context.Context, meetingID string) error {
	log := p.stageLog(model.StageDocumentReady, meetingID)
	meeting, skip, err := p.loadForStage(ctx, log, model.StageDocumentReady, meetingID)
	if err != nil || skip {
		return err
	}

	segments, err := p.store.GetTranscript(ctx, meetingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &PreconditionError{Reason: fmt.Sprintf("transcript missing for meeting %s", meetingID)}
		}
		return fmt.Errorf("load transcript for %s: %w", meetingID, err)
	}
	analysis, err := p.store.GetAnalysis(ctx, meetingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &PreconditionError{Reason: fmt.Sprintf("analysis missing for meeting %s", meetingID)}
		}
		return fmt.Errorf("load analysis for %s: %w", meetingID, err)
	}

	content := render.Markdown(meeting.Title, segments, *analysis, p.now())
	if err := p.store.UpsertDocument(ctx, meetingID, content); err != nil {
		return fmt.Errorf("store document for %s: %w", meetingID, err)
	}
	// Rendering is the last stage; the meeting jumps straight to COMPLETE.
	if err := p.store.UpdateMeetingStage(ctx, meetingID, model.StageComplete, ""); err != nil {
		return fmt.Errorf("advance meeting %s: %w", meetingID, err)
	}
	log.Info("document rendered, meeting complete")
	return nil
}

// MarkFailed moves the meeting into the absorbing FAILED state with the
// triggering error recorded. It is called by the scheduler after retry
// exhaustion, never mid-stage. Terminal meetings are left untouched.
func (p *Pipeline) MarkFailed(ctx context.Context, meetingID string, cause error) error {
	meeting, err := p.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return fmt.Errorf("load meeting %s: %w", meetingID, err)
	}
	if meeting.Stage == model.StageFailed || meeting.Stage == model.StageComplete {
		return nil
	}
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if err := p.store.UpdateMeetingStage(ctx, meetingID, model.StageFailed, msg); err != nil {
		return fmt.Errorf("mark meeting %s failed: %w", meetingID, err)
	}
	p.log.WithFields(logrus.Fields{"meeting_id": meetingID, "error": msg}).Error("meeting marked failed")
	return nil
}

// loadForStage fetches the meeting and applies the shared guards: a
// failed meeting is a no-op, and a stage whose work is already recorded
// skips straight to enqueueing its successor.
func (p *Pipeline) loadForStage(ctx context.Context, log *logrus.Entry, stage model.Stage, meetingID string) (*model.Meeting, bool, error) {
	meeting, err := p.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, false, fmt.Errorf("load meeting %s: %w", meetingID, err)
	}
	if meeting.Stage == model.StageFailed {
		log.Warn("meeting already failed, dropping stage")
		return nil, true, nil
	}
	if meeting.Stage.AtLeast(stage) {
		log.WithField("current", meeting.Stage).Warn("stage already satisfied, skipping work")
		return nil, true, p.enqueueSuccessor(ctx, stage, meetingID)
	}
	return meeting, false, nil
}

func (p *Pipeline) enqueueSuccessor(ctx context.Context, completed model.Stage, meetingID string) error {
	next, ok := successor[completed]
	if !ok {
		return nil
	}
	if err := p.sched.Enqueue(ctx, next, meetingID); err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", next, meetingID, err)
	}
	return nil
}

func (p *Pipeline) language(m *model.Meeting) string {
	if m.LanguageHint != "" {
		return m.LanguageHint
	}
	return p.defaultLang
}

func (p *Pipeline) stageLog(stage model.Stage, meetingID string) *logrus.Entry {
	return p.log.WithFields(logrus.Fields{"stage": stage, "meeting_id": meetingID})
}

// flattenTranscript joins segments into the flat, speaker-prefixed text
// the analyzer consumes.
func flattenTranscript(segments []model.Segment) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Speaker != "" {
			lines = append(lines, fmt.Sprintf("[%s] %s", seg.Speaker, seg.Text))
		} else {
			lines = append(lines, seg.Text)
		}
	}
	return strings.Join(lines, "\n")
}
