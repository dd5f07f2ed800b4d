// Package jobstatus stores the lifecycle of background sync jobs in Redis.
package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// StatusKeyFormat is the cache key of a job status. Format: sync_job_status:<jobId>
const StatusKeyFormat = "sync_job_status:%s"

const (
	DefaultTTL = 24 * time.Hour
	// optimistic transactions give up after this many conflicting writers
	maxTxRetries = 10
)

// ErrNotFound is returned for unknown or expired job ids
var ErrNotFound = errors.New("job status not found")

// Tracker reads and writes SyncJobStatus entries
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewTracker creates a tracker. A non-positive ttl falls back to DefaultTTL.
func NewTracker(client *redis.Client, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for timestamps
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Key returns the cache key for a job
func Key(jobID string) string {
	return fmt.Sprintf(StatusKeyFormat, jobID)
}

// SetStatus overwrites the state of a job and refreshes its TTL
func (t *Tracker) SetStatus(ctx context.Context, jobID string, state State) error {
	status := SyncJobStatus{JobID: jobID, UpdatedAt: t.now().UTC(), State: state}
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := t.client.Set(ctx, Key(jobID), data, t.ttl).Err(); err != nil {
		return fmt.Errorf("store status of job %s: %w", jobID, err)
	}
	return nil
}

// GetStatus returns the current status of a job
func (t *Tracker) GetStatus(ctx context.Context, jobID string) (*SyncJobStatus, error) {
	return get(ctx, t.client, jobID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func get(ctx context.Context, c getter, jobID string) (*SyncJobStatus, error) {
	data, err := c.Get(ctx, Key(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load status of job %s: %w", jobID, err)
	}
	var status SyncJobStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode status of job %s: %w", jobID, err)
	}
	return &status, nil
}

// update runs a read-modify-write of one job status inside WATCH/MULTI/EXEC.
// next receives nil when the job has no status yet. Returning a nil state skips the write.
func (t *Tracker) update(ctx context.Context, jobID string, next func(prev *SyncJobStatus) (State, error)) error {
	key := Key(jobID)
	txf := func(tx *redis.Tx) error {
		prev, err := get(ctx, tx, jobID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		state, err := next(prev)
		if err != nil || state == nil {
			return err
		}
		data, err := json.Marshal(SyncJobStatus{JobID: jobID, UpdatedAt: t.now().UTC(), State: state})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, t.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := t.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update status of job %s: %w", jobID, redis.TxFailedErr)
}

// UpdateProgress sets the processed counter of a running job and recomputes its percentage.
// Updates for jobs that already finished are dropped.
func (t *Tracker) UpdateProgress(ctx context.Context, jobID string, processed int64) error {
	return t.update(ctx, jobID, func(prev *SyncJobStatus) (State, error) {
		if prev == nil {
			return nil, ErrNotFound
		}
		switch st := prev.State.(type) {
		case Processing:
			st.ProcessedRecords = processed
			st.ProgressPercentage = ProgressPercentage(processed, st.EstimatedRecords)
			return st, nil
		case Queued:
			return Processing{
				StartedAt:          t.now().UTC(),
				EstimatedRecords:   st.EstimatedRecords,
				ProcessedRecords:   processed,
				ProgressPercentage: ProgressPercentage(processed, st.EstimatedRecords),
				Attempt:            1,
			}, nil
		default:
			log.Debugf("[JobStatus] Ignoring progress for finished job %s", jobID)
			return nil, nil
		}
	})
}

// MarkQueued records a freshly dispatched job
func (t *Tracker) MarkQueued(ctx context.Context, jobID string, estimated int64) error {
	return t.SetStatus(ctx, jobID, Queued{QueuedAt: t.now().UTC(), EstimatedRecords: estimated})
}

// MarkProcessing records the start of an attempt. A retry keeps the first StartedAt.
func (t *Tracker) MarkProcessing(ctx context.Context, jobID string, estimated int64, attempt int) error {
	return t.update(ctx, jobID, func(prev *SyncJobStatus) (State, error) {
		started := t.now().UTC()
		if prev != nil {
			if s := prev.startedAt(); !s.IsZero() {
				started = s
			}
			if estimated <= 0 {
				estimated = prev.estimated()
			}
		}
		return Processing{
			StartedAt:          started,
			EstimatedRecords:   estimated,
			ProcessedRecords:   0,
			ProgressPercentage: 0,
			Attempt:            attempt,
		}, nil
	})
}

// MarkCompleted records a successful run with its throughput
func (t *Tracker) MarkCompleted(ctx context.Context, jobID string, processed int64) error {
	return t.update(ctx, jobID, func(prev *SyncJobStatus) (State, error) {
		now := t.now().UTC()
		started := now
		if prev != nil {
			if s := prev.startedAt(); !s.IsZero() {
				started = s
			}
		}
		elapsed := now.Sub(started).Seconds()
		rps := 0.0
		if elapsed > 0 {
			rps = round2(float64(processed) / elapsed)
		}
		return Completed{
			StartedAt:        started,
			CompletedAt:      now,
			ProcessedRecords: processed,
			ExecutionSeconds: round2(elapsed),
			RecordsPerSecond: rps,
		}, nil
	})
}

// MarkFailed records a run that will not be retried
func (t *Tracker) MarkFailed(ctx context.Context, jobID string, processed int64, cause error, attempt int) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.update(ctx, jobID, func(prev *SyncJobStatus) (State, error) {
		now := t.now().UTC()
		started := now
		if prev != nil {
			if s := prev.startedAt(); !s.IsZero() {
				started = s
			}
			if processed <= 0 {
				processed = prev.processed()
			}
		}
		return Failed{
			StartedAt:        started,
			FailedAt:         now,
			ProcessedRecords: processed,
			Error:            msg,
			Attempt:          attempt,
		}, nil
	})
}
