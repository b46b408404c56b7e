package queue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyparkkk-lg/meeting-ai/internal/model"
)

// StageRunner executes one stage's work for one meeting.
type StageRunner interface {
	RunStage(ctx context.Context, stage model.Stage, meetingID string) error
}

// FailureHandler is invoked once a job has exhausted its attempts.
type FailureHandler func(ctx context.Context, meetingID string, cause error) error

type inprocJob struct {
	stage     model.Stage
	meetingID string
	attempt   int
}

// InProcScheduler runs stage jobs on a goroutine pool inside the same
// process, with the same contract as the Redis-backed transport:
// deterministic job identity with pending dedup, at-least-once delivery
// to the runner, bounded retries with exponential backoff, and a
// failure hook after the last attempt. It backs the demo binary and the
// tests, where a broker is overkill.
type InProcScheduler struct {
	runner      StageRunner
	onExhausted FailureHandler
	maxAttempts int
	retryBase   time.Duration
	workers     int
	log         *logrus.Logger

	jobs chan inprocJob

	mu      sync.Mutex
	pending map[string]struct{}

	wg sync.WaitGroup
}

// NewInProcScheduler builds a scheduler with the given worker count.
// Zero-valued limits fall back to the defaults.
func NewInProcScheduler(runner StageRunner, onExhausted FailureHandler, workers, maxAttempts int, retryBase time.Duration, log *logrus.Logger) *InProcScheduler {
	if workers <= 0 {
		workers = 2
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if retryBase <= 0 {
		retryBase = DefaultRetryBase
	}
	return &InProcScheduler{
		runner:      runner,
		onExhausted: onExhausted,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
		workers:     workers,
		log:         log,
		jobs:        make(chan inprocJob, 64),
		pending:     make(map[string]struct{}),
	}
}

// SetRunner installs the runner and failure handler after construction.
// The pipeline enqueues its successor stages through the scheduler, so
// the two reference each other; one side has to be wired late. Call
// before Start.
func (s *InProcScheduler) SetRunner(runner StageRunner, onExhausted FailureHandler) {
	s.runner = runner
	s.onExhausted = onExhausted
}

// Start launches the worker pool. Workers drain until ctx is cancelled.
func (s *InProcScheduler) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-s.jobs:
					s.execute(ctx, job)
				}
			}
		}()
	}
}

// Wait blocks until all workers have exited. Call after cancelling the
// Start context.
func (s *InProcScheduler) Wait() {
	s.wg.Wait()
}

// Enqueue submits a first-attempt job. A job with the same identity
// still waiting for a worker coalesces into the pending one.
func (s *InProcScheduler) Enqueue(ctx context.Context, stage model.Stage, meetingID string) error {
	if _, err := TaskType(stage); err != nil {
		return err
	}
	id := JobID(stage, meetingID)
	s.mu.Lock()
	if _, dup := s.pending[id]; dup {
		s.mu.Unlock()
		return nil
	}
	s.pending[id] = struct{}{}
	s.mu.Unlock()

	s.submit(inprocJob{stage: stage, meetingID: meetingID})
	return nil
}

// submit hands the job to a worker. When the buffer is full the send
// moves to a goroutine so a worker enqueueing its successor stage can
// never deadlock against its own pool.
func (s *InProcScheduler) submit(job inprocJob) {
	select {
	case s.jobs <- job:
	default:
		go func() { s.jobs <- job }()
	}
}

func (s *InProcScheduler) execute(ctx context.Context, job inprocJob) {
	// Clear pending before running, so a fresh Enqueue issued while the
	// job runs is accepted as new work rather than coalesced away.
	s.mu.Lock()
	delete(s.pending, JobID(job.stage, job.meetingID))
	s.mu.Unlock()

	err := s.runner.RunStage(ctx, job.stage, job.meetingID)
	if err == nil {
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"stage":      job.stage,
		"meeting_id": job.meetingID,
		"attempt":    job.attempt + 1,
	})
	if job.attempt+1 >= s.maxAttempts {
		log.WithField("error", err.Error()).Error("job exhausted attempts")
		if s.onExhausted != nil {
			if ferr := s.onExhausted(ctx, job.meetingID, err); ferr != nil {
				log.WithField("error", ferr.Error()).Error("failure handler error")
			}
		}
		return
	}

	delay := RetryDelay(job.attempt, s.retryBase)
	log.WithFields(logrus.Fields{"error": err.Error(), "retry_in": delay.String()}).Warn("job failed, scheduling retry")
	retry := inprocJob{stage: job.stage, meetingID: job.meetingID, attempt: job.attempt + 1}
	// Retries bypass dedup: the attempt counter must survive, and the
	// original identity was already released above.
	time.AfterFunc(delay, func() {
		select {
		case <-ctx.Done():
		default:
			s.submit(retry)
		}
	})
}
