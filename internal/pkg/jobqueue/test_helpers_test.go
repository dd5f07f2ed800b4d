package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/BetSync/internal/pkg/testutil"
)

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// recordingHandler runs fn for every attempt and remembers OnFailure calls
type recordingHandler struct {
	mu       sync.Mutex
	fn       func(ctx context.Context, job *Job) error
	attempts int
	failures []error
}

func (h *recordingHandler) Handle(ctx context.Context, job *Job) error {
	h.mu.Lock()
	h.attempts++
	h.mu.Unlock()
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, job)
}

func (h *recordingHandler) OnFailure(_ context.Context, _ *Job, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, err)
}

func (h *recordingHandler) Attempts() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts
}

func (h *recordingHandler) Failures() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.failures...)
}

func newTestQueue(t *testing.T, opts Options) (*Queue, *redis.Client) {
	t.Helper()
	_, client := testutil.NewRedis(t)
	return NewQueue(client, opts), client
}

// testJob stores a job the way EnqueueJobWithID does, without pushing it to the pending list
func testJob(t *testing.T, q *Queue, retryCount int) *Job {
	t.Helper()
	now := time.Now()
	job := &Job{
		ID:         "sync_bets_test",
		Type:       JobTypeSyncBets,
		Status:     JobStatusPending,
		Payload:    map[string]interface{}{"start_date": "2024-01-15", "end_date": "2024-01-15"},
		CreatedAt:  now,
		UpdatedAt:  now,
		RetryCount: retryCount,
		MaxRetries: q.opts.MaxAttempts,
	}
	q.updateJob(context.Background(), job)
	return job
}
