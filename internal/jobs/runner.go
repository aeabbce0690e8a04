package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"gemscope/internal/common"
)

// Func is the unit of work a job executes. It reports progress through
// the callback and returns the result payload to persist.
type Func func(ctx context.Context, progress func(float64)) (json.RawMessage, error)

type task struct {
	jobID string
	fn    Func
}

// Runner executes jobs on a bounded worker pool. Submissions beyond the
// queue capacity are rejected rather than queued unbounded.
type Runner struct {
	tracker *Tracker
	queue   chan task
	metrics MetricsInterface
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner starts workers goroutines consuming the job queue.
// Non-positive sizes fall back to defaults.
func NewRunner(tracker *Tracker, workers, queueSize int, metrics MetricsInterface) *Runner {
	if workers <= 0 {
		workers = common.DefaultJobWorkers
	}
	if workers > common.MaxJobWorkers {
		workers = common.MaxJobWorkers
	}
	if queueSize <= 0 {
		queueSize = common.DefaultJobQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	runner := &Runner{
		tracker: tracker,
		queue:   make(chan task, queueSize),
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		runner.wg.Add(1)
		go runner.work()
	}

	return runner
}

// Stop stops accepting work and waits for the workers to drain. Queued
// jobs that never ran stay pending in the tracker.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Submit creates a tracked job and enqueues it. Returns ErrUnavailable
// when the queue is full.
func (r *Runner) Submit(ownerID, kind string, payload json.RawMessage, fn Func) (Job, error) {
	job, err := r.tracker.Create(ownerID, kind, payload)
	if err != nil {
		return Job{}, err
	}

	select {
	case r.queue <- task{jobID: job.ID, fn: fn}:
		r.reportQueueDepth()
		return job, nil
	default:
		r.tracker.Fail(job.ID, fmt.Errorf("job queue full"))
		return Job{}, fmt.Errorf("job queue full (%d pending): %w", len(r.queue), common.ErrUnavailable)
	}
}

func (r *Runner) work() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case t := <-r.queue:
			r.reportQueueDepth()
			r.run(t)
		}
	}
}

func (r *Runner) run(t task) {
	if r.metrics != nil {
		r.metrics.JobsActiveAdd(1)
		defer r.metrics.JobsActiveAdd(-1)
	}

	// A panicking job must not take its worker down with it.
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("job", t.jobID).Interface("panic", rec).Msg("Job panicked")
			r.tracker.Fail(t.jobID, fmt.Errorf("job panicked: %v", rec))
		}
	}()

	r.tracker.Start(t.jobID)

	result, err := t.fn(r.ctx, func(p float64) {
		r.tracker.Progress(t.jobID, p)
	})
	if err != nil {
		log.Warn().Err(err).Str("job", t.jobID).Msg("Job failed")
		r.tracker.Fail(t.jobID, err)
		return
	}
	r.tracker.Succeed(t.jobID, result)
}

func (r *Runner) reportQueueDepth() {
	if r.metrics != nil {
		r.metrics.JobsQueuedSet(float64(len(r.queue)))
	}
}
