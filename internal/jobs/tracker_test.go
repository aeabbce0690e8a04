package jobs

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemscope/internal/common"
	"gemscope/internal/storage"
)

// mockJobMetrics implements MetricsInterface for testing
type mockJobMetrics struct {
	mu        sync.Mutex
	active    float64
	maxActive float64
	queued    float64
	completed int
	failed    int
}

func (m *mockJobMetrics) JobsActiveAdd(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active += delta
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
}

func (m *mockJobMetrics) JobsQueuedSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = v
}

func (m *mockJobMetrics) JobsCompletedInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed++
}

func (m *mockJobMetrics) JobsFailedInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *mockJobMetrics) Counts() (completed, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed, m.failed
}

func (m *mockJobMetrics) ActiveStats() (current, peak float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.maxActive
}

func (m *mockJobMetrics) QueuedDepth() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queued
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTrackerLifecycle(t *testing.T) {
	store := newTestStore(t)
	metrics := &mockJobMetrics{}
	tracker := NewTracker(store, time.Hour, metrics)
	defer tracker.Stop()

	job, err := tracker.Create("owner-a", KindOptimize, json.RawMessage(`{"samples":100}`))
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatePending, job.State)
	assert.NotEmpty(t, job.ID)

	// Pending state is persisted immediately.
	record, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStatePending, record.State)

	tracker.Start(job.ID)
	got, err := tracker.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStateRunning, got.State)
	require.NotNil(t, got.StartedAt)

	tracker.Progress(job.ID, 0.5)
	got, err = tracker.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Progress)

	tracker.Succeed(job.ID, json.RawMessage(`{"pred_price":4200}`))
	got, err = tracker.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStateSucceeded, got.State)
	assert.Equal(t, 1.0, got.Progress)
	require.NotNil(t, got.FinishedAt)
	assert.JSONEq(t, `{"pred_price":4200}`, string(got.Result))

	record, err = store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStateSucceeded, record.State)

	completed, failed := metrics.Counts()
	assert.Equal(t, 1, completed)
	assert.Equal(t, 0, failed)
}

func TestTrackerFail(t *testing.T) {
	metrics := &mockJobMetrics{}
	tracker := NewTracker(nil, time.Hour, metrics)
	defer tracker.Stop()

	job, err := tracker.Create("owner-a", KindTrain, nil)
	require.NoError(t, err)
	tracker.Start(job.ID)
	tracker.Fail(job.ID, errors.New("singular matrix"))

	got, err := tracker.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStateFailed, got.State)
	assert.Equal(t, "singular matrix", got.Error)

	completed, failed := metrics.Counts()
	assert.Equal(t, 0, completed)
	assert.Equal(t, 1, failed)

	// A second terminal transition is ignored.
	tracker.Succeed(job.ID, nil)
	got, _ = tracker.Get(job.ID)
	assert.Equal(t, storage.JobStateFailed, got.State)
	completed, _ = metrics.Counts()
	assert.Equal(t, 0, completed)
}

func TestTrackerProgressClamped(t *testing.T) {
	tracker := NewTracker(nil, time.Hour, nil)
	defer tracker.Stop()

	job, err := tracker.Create("o", KindOptimize, nil)
	require.NoError(t, err)
	tracker.Start(job.ID)

	tracker.Progress(job.ID, -0.5)
	got, _ := tracker.Get(job.ID)
	assert.Equal(t, 0.0, got.Progress)

	tracker.Progress(job.ID, 1.5)
	got, _ = tracker.Get(job.ID)
	assert.Equal(t, 1.0, got.Progress)

	// Progress after a terminal state is ignored.
	tracker.Succeed(job.ID, nil)
	tracker.Progress(job.ID, 0.2)
	got, _ = tracker.Get(job.ID)
	assert.Equal(t, 1.0, got.Progress)
}

func TestTrackerGetFallsBackToStore(t *testing.T) {
	store := newTestStore(t)

	first := NewTracker(store, time.Hour, nil)
	job, err := first.Create("owner-a", KindPredict, nil)
	require.NoError(t, err)
	first.Succeed(job.ID, json.RawMessage(`{"rows":10}`))
	first.Stop()

	// A fresh tracker has nothing in memory and reads the record.
	second := NewTracker(store, time.Hour, nil)
	defer second.Stop()

	got, err := second.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStateSucceeded, got.State)
	assert.Equal(t, 1.0, got.Progress)

	_, err = second.Get("no-such-job")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestTrackerSubscribe(t *testing.T) {
	tracker := NewTracker(nil, time.Hour, nil)
	defer tracker.Stop()

	job, err := tracker.Create("o", KindOptimize, nil)
	require.NoError(t, err)

	events, cancel := tracker.Subscribe(job.ID)
	defer cancel()

	tracker.Start(job.ID)
	tracker.Progress(job.ID, 0.5)
	tracker.Succeed(job.ID, nil)

	e := nextEvent(t, events)
	assert.Equal(t, storage.JobStateRunning, e.State)

	e = nextEvent(t, events)
	assert.Equal(t, storage.JobStateRunning, e.State)
	assert.Equal(t, 0.5, e.Progress)

	e = nextEvent(t, events)
	assert.Equal(t, storage.JobStateSucceeded, e.State)
	assert.Equal(t, 1.0, e.Progress)

	// The channel closes after the terminal event.
	select {
	case _, ok := <-events:
		assert.False(t, ok, "expected closed channel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel never closed")
	}
}

func TestTrackerSubscribeCancel(t *testing.T) {
	tracker := NewTracker(nil, time.Hour, nil)
	defer tracker.Stop()

	job, err := tracker.Create("o", KindOptimize, nil)
	require.NoError(t, err)

	events, cancel := tracker.Subscribe(job.ID)
	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "expected closed channel after cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("channel never closed")
	}

	// Finishing afterwards must not panic on the removed subscriber.
	tracker.Succeed(job.ID, nil)
	cancel() // second cancel is a no-op
}

func TestTrackerList(t *testing.T) {
	store := newTestStore(t)

	// A job from an earlier process lives only in the store.
	old := NewTracker(store, time.Hour, nil)
	oldJob, err := old.Create("owner-a", KindTrain, nil)
	require.NoError(t, err)
	old.Succeed(oldJob.ID, nil)
	old.Stop()

	tracker := NewTracker(store, time.Hour, nil)
	defer tracker.Stop()

	live, err := tracker.Create("owner-a", KindOptimize, nil)
	require.NoError(t, err)

	list, err := tracker.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, live.ID, list[0].ID, "newest job should come first")
	assert.Equal(t, oldJob.ID, list[1].ID)
}

func TestTrackerCleanup(t *testing.T) {
	store := newTestStore(t)
	tracker := NewTracker(store, time.Hour, nil)
	defer tracker.Stop()

	finished, err := tracker.Create("o", KindOptimize, nil)
	require.NoError(t, err)
	tracker.Succeed(finished.ID, nil)

	running, err := tracker.Create("o", KindTrain, nil)
	require.NoError(t, err)
	tracker.Start(running.ID)

	// Jump past the retention window and sweep.
	tracker.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	tracker.cleanup()

	_, err = tracker.Get(finished.ID)
	assert.ErrorIs(t, err, common.ErrNotFound, "finished job should be gone from memory and store")

	got, err := tracker.Get(running.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobStateRunning, got.State, "running job must survive cleanup")
}

func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed early")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func waitForTerminal(t *testing.T, tracker *Tracker, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := tracker.Get(id)
		require.NoError(t, err)
		if job.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never finished", id)
	return Job{}
}

func waitForState(t *testing.T, tracker *Tracker, id, state string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := tracker.Get(id)
		require.NoError(t, err)
		if job.State == state {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", id, state)
	return Job{}
}
