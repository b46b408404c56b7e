// Package queue maps pipeline stages onto durable jobs. Job identity is
// deterministic per (stage, meeting), so re-submitting a stage that is
// already pending coalesces instead of duplicating work.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

const (
	// TaskTranscribe produces the transcript for an uploaded meeting.
	TaskTranscribe = "meeting:transcribe"
	// TaskAnalyze produces the structured analysis from the transcript.
	TaskAnalyze = "meeting:analyze"
	// TaskRender produces the final markdown document.
	TaskRender = "meeting:render"
)

const (
	// DefaultMaxAttempts bounds deliveries per job, first try included.
	DefaultMaxAttempts = 5
	// DefaultRetryBase is the backoff before the first retry; it doubles
	// per attempt after that.
	DefaultRetryBase = time.Second

	maxRetryDelay = 10 * time.Minute
)

// Payload is serialized into the task so the worker knows which meeting
// to advance. The stage rides on the task type.
type Payload struct {
	MeetingID string `json:"meeting_id"`
}

// TaskType returns the task type that executes the given stage.
func TaskType(stage model.Stage) (string, error) {
	switch stage {
	case model.StageTranscriptReady:
		return TaskTranscribe, nil
	case model.StageAnalysisReady:
		return TaskAnalyze, nil
	case model.StageDocumentReady:
		return TaskRender, nil
	default:
		return "", fmt.Errorf("stage %s has no task type", stage)
	}
}

// StageForTask is the inverse of TaskType.
func StageForTask(taskType string) (model.Stage, error) {
	switch taskType {
	case TaskTranscribe:
		return model.StageTranscriptReady, nil
	case TaskAnalyze:
		return model.StageAnalysisReady, nil
	case TaskRender:
		return model.StageDocumentReady, nil
	default:
		return "", fmt.Errorf("unknown task type %q", taskType)
	}
}

// JobID is the deterministic identity used for pending-job dedup.
func JobID(stage model.Stage, meetingID string) string {
	return fmt.Sprintf("%s_%s", stage, meetingID)
}

// RetryDelay returns the backoff before the given retry (0-based),
// doubling from base and capped.
func RetryDelay(n int, base time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultRetryBase
	}
	d := base << uint(n)
	if d > maxRetryDelay || d <= 0 {
		return maxRetryDelay
	}
	return d
}

// Enqueuer submits stage jobs to Redis via asynq.
type Enqueuer struct {
	client      *asynq.Client
	maxAttempts int
}

// NewEnqueuer wraps an asynq client. maxAttempts <= 0 falls back to the
// default.
func NewEnqueuer(client *asynq.Client, maxAttempts int) *Enqueuer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Enqueuer{client: client, maxAttempts: maxAttempts}
}

// Enqueue submits one stage job for one meeting. A job with the same
// identity already pending makes this a no-op: the pending delivery
// covers the request.
func (e *Enqueuer) Enqueue(ctx context.Context, stage model.Stage, meetingID string) error {
	taskType, err := TaskType(stage)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Payload{MeetingID: meetingID})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.TaskID(JobID(stage, meetingID)),
		asynq.MaxRetry(e.maxAttempts-1),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", taskType, meetingID, err)
	}
	return nil
}
