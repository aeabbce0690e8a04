// Package jobs runs train, optimize, and predict work asynchronously: a
// tracker holds live job state and streams progress events, and a bounded
// worker pool executes the work. Terminal states persist to the metadata
// store so job history survives restarts.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"gemscope/internal/common"
	"gemscope/internal/storage"
)

// Job kinds accepted by the runner.
const (
	KindTrain    = "train"
	KindOptimize = "optimize"
	KindPredict  = "predict"
)

const (
	cleanupInterval = time.Minute
	eventBuffer     = 16
)

// MetricsInterface defines the metrics operations the jobs package reports.
type MetricsInterface interface {
	JobsActiveAdd(delta float64)
	JobsQueuedSet(v float64)
	JobsCompletedInc()
	JobsFailedInc()
}

// Job is the live state of one asynchronous job. Progress is only
// meaningful while running and is not persisted.
type Job struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"ownerId"`
	Kind       string          `json:"kind"`
	State      string          `json:"state"`
	Progress   float64         `json:"progress"`
	Error      string          `json:"error,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.State == storage.JobStateSucceeded || j.State == storage.JobStateFailed
}

func (j *Job) record() storage.JobRecord {
	return storage.JobRecord{
		ID:         j.ID,
		OwnerID:    j.OwnerID,
		Kind:       j.Kind,
		State:      j.State,
		Error:      j.Error,
		Payload:    j.Payload,
		Result:     j.Result,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// Event is one state or progress change, streamed to subscribers.
type Event struct {
	JobID    string  `json:"jobId"`
	Kind     string  `json:"kind"`
	State    string  `json:"state"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// Tracker holds live jobs, fans change events out to subscribers, and
// persists pending and terminal states. Finished jobs age out of memory
// and the store after the retention window.
type Tracker struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[string][]chan Event
	store       *storage.Store
	retention   time.Duration
	metrics     MetricsInterface
	now         func() time.Time
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewTracker creates a tracker. The store and metrics sink may be nil;
// a non-positive retention falls back to the default.
func NewTracker(store *storage.Store, retention time.Duration, metrics MetricsInterface) *Tracker {
	if retention <= 0 {
		retention = common.DefaultJobRetention * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	tracker := &Tracker{
		jobs:        make(map[string]*Job),
		subscribers: make(map[string][]chan Event),
		store:       store,
		retention:   retention,
		metrics:     metrics,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}

	tracker.wg.Add(1)
	go tracker.cleanupLoop()

	return tracker
}

// Stop stops the cleanup goroutine and drops all subscribers.
func (t *Tracker) Stop() {
	t.cancel()
	t.wg.Wait()

	t.mu.Lock()
	defer t.mu.Unlock()
	for id, subs := range t.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(t.subscribers, id)
	}
}

// Create registers a new pending job and persists it.
func (t *Tracker) Create(ownerID, kind string, payload json.RawMessage) (Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Kind:      kind,
		State:     storage.JobStatePending,
		Payload:   payload,
		CreatedAt: t.now(),
	}

	if t.store != nil {
		if err := t.store.PutJob(job.record()); err != nil {
			return Job{}, fmt.Errorf("persist job: %w", err)
		}
	}

	t.mu.Lock()
	t.jobs[job.ID] = job
	t.broadcastLocked(job)
	t.mu.Unlock()

	return *job, nil
}

// Start marks the job running.
func (t *Tracker) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return
	}
	started := t.now()
	job.State = storage.JobStateRunning
	job.StartedAt = &started
	t.broadcastLocked(job)
}

// Progress updates the job's progress fraction, clamped to [0,1].
func (t *Tracker) Progress(id string, progress float64) {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok || job.Terminal() {
		return
	}
	job.Progress = progress
	t.broadcastLocked(job)
}

// Succeed marks the job finished with a result payload.
func (t *Tracker) Succeed(id string, result json.RawMessage) {
	if t.finish(id, storage.JobStateSucceeded, result, nil) && t.metrics != nil {
		t.metrics.JobsCompletedInc()
	}
}

// Fail marks the job failed.
func (t *Tracker) Fail(id string, jobErr error) {
	if t.finish(id, storage.JobStateFailed, nil, jobErr) && t.metrics != nil {
		t.metrics.JobsFailedInc()
	}
}

func (t *Tracker) finish(id, state string, result json.RawMessage, jobErr error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok || job.Terminal() {
		return false
	}
	finished := t.now()
	job.State = state
	job.FinishedAt = &finished
	job.Result = result
	job.Progress = 1
	if jobErr != nil {
		job.Error = jobErr.Error()
	}

	if t.store != nil {
		if err := t.store.PutJob(job.record()); err != nil {
			log.Warn().Err(err).Str("job", id).Msg("Failed to persist job state")
		}
	}

	t.broadcastLocked(job)
	// Terminal state: no further events, release the subscribers.
	for _, ch := range t.subscribers[id] {
		close(ch)
	}
	delete(t.subscribers, id)
	return true
}

// Get returns a snapshot of the job, falling back to the persisted record
// when it is no longer in memory.
func (t *Tracker) Get(id string) (Job, error) {
	t.mu.RLock()
	job, ok := t.jobs[id]
	if ok {
		snapshot := *job
		t.mu.RUnlock()
		return snapshot, nil
	}
	t.mu.RUnlock()

	if t.store == nil {
		return Job{}, fmt.Errorf("job %q: %w", id, common.ErrNotFound)
	}
	record, err := t.store.GetJob(id)
	if err != nil {
		return Job{}, err
	}
	return fromRecord(record), nil
}

// List returns all known jobs, newest first. Live jobs win over their
// persisted copies.
func (t *Tracker) List() ([]Job, error) {
	seen := make(map[string]bool)

	t.mu.RLock()
	result := make([]Job, 0, len(t.jobs))
	for id, job := range t.jobs {
		result = append(result, *job)
		seen[id] = true
	}
	t.mu.RUnlock()

	if t.store != nil {
		records, err := t.store.ListJobs()
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			if !seen[record.ID] {
				result = append(result, fromRecord(record))
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Subscribe returns a channel of change events for one job plus a cancel
// function. The channel closes after the terminal event (or on cancel).
// Slow subscribers drop intermediate events rather than block updates.
func (t *Tracker) Subscribe(id string) (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)

	t.mu.Lock()
	t.subscribers[id] = append(t.subscribers[id], ch)
	t.mu.Unlock()

	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		subs := t.subscribers[id]
		for i, sub := range subs {
			if sub == ch {
				t.subscribers[id] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

func (t *Tracker) broadcastLocked(job *Job) {
	event := Event{
		JobID:    job.ID,
		Kind:     job.Kind,
		State:    job.State,
		Progress: job.Progress,
		Error:    job.Error,
	}
	for _, ch := range t.subscribers[job.ID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// cleanupLoop ages finished jobs out of memory and the store.
func (t *Tracker) cleanupLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.cleanup()
		}
	}
}

func (t *Tracker) cleanup() {
	cutoff := t.now().Add(-t.retention)

	t.mu.Lock()
	removed := 0
	for id, job := range t.jobs {
		if job.Terminal() && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(t.jobs, id)
			removed++
		}
	}
	t.mu.Unlock()

	pruned := 0
	if t.store != nil {
		var err error
		pruned, err = t.store.PruneJobs(cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("Job prune failed")
		}
	}
	if removed > 0 || pruned > 0 {
		log.Debug().Int("memory", removed).Int("store", pruned).Msg("Cleaned up finished jobs")
	}
}

func fromRecord(record storage.JobRecord) Job {
	job := Job{
		ID:         record.ID,
		OwnerID:    record.OwnerID,
		Kind:       record.Kind,
		State:      record.State,
		Error:      record.Error,
		Payload:    record.Payload,
		Result:     record.Result,
		CreatedAt:  record.CreatedAt,
		StartedAt:  record.StartedAt,
		FinishedAt: record.FinishedAt,
	}
	if job.Terminal() {
		job.Progress = 1
	}
	return job
}
