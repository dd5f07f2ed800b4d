package jobstatus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/BetSync/internal/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeClock, func(time.Duration)) {
	server, client := testutil.NewRedis(t)
	clock := &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	tracker := NewTracker(client, 24*time.Hour).WithClock(clock.Now)
	return tracker, clock, server.FastForward
}

func TestTracker_GetStatusNotFound(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	_, err := tracker.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_Lifecycle(t *testing.T) {
	tracker, clock, _ := newTestTracker(t)
	ctx := context.Background()
	started := clock.Now()

	require.NoError(t, tracker.MarkQueued(ctx, "job1", 200))
	status, err := tracker.GetStatus(ctx, "job1")
	require.NoError(t, err)
	assert.Equal(t, Queued{QueuedAt: started, EstimatedRecords: 200}, status.State)

	clock.Advance(time.Second)
	require.NoError(t, tracker.MarkProcessing(ctx, "job1", 200, 1))
	require.NoError(t, tracker.UpdateProgress(ctx, "job1", 50))

	status, err = tracker.GetStatus(ctx, "job1")
	require.NoError(t, err)
	processing, ok := status.State.(Processing)
	require.True(t, ok, "got %T", status.State)
	assert.Equal(t, int64(50), processing.ProcessedRecords)
	assert.Equal(t, 25.0, processing.ProgressPercentage)
	assert.Equal(t, 1, processing.Attempt)
	assert.True(t, started.Add(time.Second).Equal(processing.StartedAt))

	clock.Advance(10 * time.Second)
	require.NoError(t, tracker.MarkCompleted(ctx, "job1", 200))

	status, err = tracker.GetStatus(ctx, "job1")
	require.NoError(t, err)
	completed, ok := status.State.(Completed)
	require.True(t, ok, "got %T", status.State)
	assert.Equal(t, int64(200), completed.ProcessedRecords)
	assert.Equal(t, 10.0, completed.ExecutionSeconds)
	assert.Equal(t, 20.0, completed.RecordsPerSecond)
	assert.True(t, processing.StartedAt.Equal(completed.StartedAt), "start time preserved")
}

func TestTracker_ProgressWithZeroEstimate(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkProcessing(ctx, "job", 0, 1))
	require.NoError(t, tracker.UpdateProgress(ctx, "job", 500))

	status, err := tracker.GetStatus(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, 0.0, status.State.(Processing).ProgressPercentage)
}

func TestTracker_UpdateProgressUnknownJob(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	err := tracker.UpdateProgress(context.Background(), "nope", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_ProgressAfterCompletionIsDropped(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkProcessing(ctx, "job", 10, 1))
	require.NoError(t, tracker.MarkCompleted(ctx, "job", 10))
	require.NoError(t, tracker.UpdateProgress(ctx, "job", 3))

	status, err := tracker.GetStatus(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.State.Status())
}

func TestTracker_MarkFailedKeepsProgressAndStart(t *testing.T) {
	tracker, clock, _ := newTestTracker(t)
	ctx := context.Background()
	started := clock.Now()

	require.NoError(t, tracker.MarkProcessing(ctx, "job", 100, 1))
	require.NoError(t, tracker.UpdateProgress(ctx, "job", 40))

	clock.Advance(time.Minute)
	require.NoError(t, tracker.MarkProcessing(ctx, "job", 100, 2))
	require.NoError(t, tracker.MarkFailed(ctx, "job", 0, errors.New("source store unreachable"), 2))

	status, err := tracker.GetStatus(ctx, "job")
	require.NoError(t, err)
	failed, ok := status.State.(Failed)
	require.True(t, ok, "got %T", status.State)
	assert.Equal(t, "source store unreachable", failed.Error)
	assert.Equal(t, 2, failed.Attempt)
	assert.True(t, started.Equal(failed.StartedAt), "retry keeps the first start time")
	assert.True(t, started.Add(time.Minute).Equal(failed.FailedAt))
}

func TestTracker_StatusExpires(t *testing.T) {
	tracker, _, fastForward := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.MarkQueued(ctx, "job", 1))
	fastForward(25 * time.Hour)

	_, err := tracker.GetStatus(ctx, "job")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTracker_ConcurrentProgressUpdates(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()
	require.NoError(t, tracker.MarkProcessing(ctx, "job", 1000, 1))

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			assert.NoError(t, tracker.UpdateProgress(ctx, "job", n*100))
		}(int64(i))
	}
	wg.Wait()

	status, err := tracker.GetStatus(ctx, "job")
	require.NoError(t, err)
	processing := status.State.(Processing)
	assert.Equal(t, ProgressPercentage(processing.ProcessedRecords, 1000), processing.ProgressPercentage,
		"percentage always matches the stored counter")
	assert.Equal(t, 1000, int(processing.EstimatedRecords))
}
