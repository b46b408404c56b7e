// Package worker plugs the stage state machine into the asynq worker
// loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/pipeline"
	"github.com/dyparkkk-lg/meeting-ai/internal/queue"
)

// Processor routes stage tasks to the pipeline.
type Processor struct {
	pipeline *pipeline.Pipeline
	log      *logrus.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(p *pipeline.Pipeline, log *logrus.Logger) *Processor {
	return &Processor{pipeline: p, log: log}
}

// Handler registers the stage task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTranscribe, p.handleStage)
	mux.HandleFunc(queue.TaskAnalyze, p.handleStage)
	mux.HandleFunc(queue.TaskRender, p.handleStage)
	return mux
}

// handleStage runs one stage attempt. A returned error hands the task
// back to asynq for retry; on the final attempt the meeting is failed
// first, so retry exhaustion is always recorded on the record itself.
func (p *Processor) handleStage(ctx context.Context, task *asynq.Task) error {
	stage, err := queue.StageForTask(task.Type())
	if err != nil {
		return err
	}
	var payload queue.Payload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	log := p.log.WithFields(logrus.Fields{
		"stage":      stage,
		"meeting_id": payload.MeetingID,
		"attempt":    retried + 1,
	})

	if err := p.pipeline.RunStage(ctx, stage, payload.MeetingID); err != nil {
		if retried >= maxRetry {
			log.WithField("error", err.Error()).Error("stage exhausted attempts")
			if ferr := p.pipeline.MarkFailed(ctx, payload.MeetingID, err); ferr != nil {
				log.WithField("error", ferr.Error()).Error("mark failed error")
			}
		} else {
			log.WithField("error", err.Error()).Warn("stage attempt failed")
		}
		return err
	}
	return nil
}
