package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/BetSync/internal/pkg/cache"
	"github.com/ManuelReschke/BetSync/internal/pkg/metrics"
)

const (
	// Redis key prefixes
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobStatsKey      = "job_stats"

	// Job settings
	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour // Jobs expire after 24 hours
)

// Options tunes workers, attempts and the stuck-job sweeper
type Options struct {
	Workers      int
	MaxAttempts  int
	JobTimeout   time.Duration
	RetryBackoff time.Duration
	// StuckAfter is how long a job may sit in the processing list before the sweeper requeues it
	StuckAfter    time.Duration
	SweepInterval time.Duration
	PollTimeout   time.Duration
}

// DefaultOptions returns the settings used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Workers:       3,
		MaxAttempts:   DefaultMaxRetries,
		JobTimeout:    time.Hour,
		RetryBackoff:  time.Minute,
		SweepInterval: time.Minute,
		PollTimeout:   time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = d.JobTimeout
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = d.RetryBackoff
	}
	if o.StuckAfter <= 0 {
		o.StuckAfter = o.JobTimeout + 10*time.Minute
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = d.PollTimeout
	}
	return o
}

// Queue manages background jobs using Redis
type Queue struct {
	client     *redis.Client
	opts       Options
	handlers   map[JobType]Handler
	metrics    *metrics.Manager
	workers    int
	workerPool chan struct{}
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

// NewQueue creates a new job queue. A nil client uses the shared cache client.
func NewQueue(client *redis.Client, opts Options) *Queue {
	if client == nil {
		client = cache.GetClient()
	}
	opts = opts.withDefaults()

	return &Queue{
		client:     client,
		opts:       opts,
		handlers:   make(map[JobType]Handler),
		metrics:    metrics.Default(),
		workers:    opts.Workers,
		workerPool: make(chan struct{}, opts.Workers),
		stopCh:     make(chan struct{}),
	}
}

// RegisterHandler sets the handler for a job type
func (q *Queue) RegisterHandler(jobType JobType, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

func (q *Queue) handler(jobType JobType) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[jobType]
	return h, ok
}

// Start starts the job queue workers
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	// Initialize worker pool
	q.workerPool = make(chan struct{}, q.workers)
	for i := 0; i < q.workers; i++ {
		q.workerPool <- struct{}{}
	}

	// Start workers
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Start stuck-processing sweeper (recovers jobs stuck in processing due to crashes)
	q.wg.Add(1)
	go q.stuckSweeper(q.opts.StuckAfter, q.opts.SweepInterval)
}

// Stop stops the job queue workers and waits for running jobs to finish
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// IsRunning returns whether workers are started
func (q *Queue) IsRunning() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.running
}

// stuckSweeper periodically scans the processing list and requeues jobs stuck for longer than maxAge
func (q *Queue) stuckSweeper(maxAge time.Duration, interval time.Duration) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Stuck sweeper running (maxAge=%s, interval=%s)", maxAge, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			log.Info("[JobQueue] Stuck sweeper stopping")
			return
		case <-ticker.C:
			if _, err := q.SweepStuck(ctx, maxAge); err != nil {
				log.Errorf("[JobQueue] Sweeper error: %v", err)
			}
		}
	}
}

// SweepStuck requeues processing jobs older than maxAge and retries whose backoff has passed,
// and drops stray entries. It returns the requeued ids.
func (q *Queue) SweepStuck(ctx context.Context, maxAge time.Duration) ([]string, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list processing jobs: %w", err)
	}

	var requeued []string
	now := time.Now()
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			// Job data missing or unreadable; remove from processing list
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Sweeper could not load job %s: %v", id, err)
			}
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		if job.Status == JobStatusRetrying {
			// Waiting for its backoff; recover it once the retry is overdue
			if due := job.UpdatedAt.Add(q.retryDelay(job)); now.After(due) {
				moved, err := q.moveToQueue(ctx, id, "LPUSH")
				if err != nil {
					log.Errorf("[JobQueue] Sweeper could not requeue retry of job %s: %v", id, err)
				} else if moved {
					log.Warnf("[JobQueue] Recovering overdue retry of job %s (attempt %d)", id, job.Attempt())
					requeued = append(requeued, id)
				}
			}
			continue
		}
		if job.Status != JobStatusProcessing {
			// Clean up stray entry
			_ = q.client.LRem(ctx, JobProcessingKey, 1, id).Err()
			continue
		}
		// Determine when processing started
		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if started.IsZero() {
			started = job.CreatedAt
		}
		if age := now.Sub(started); age > maxAge {
			log.Warnf("[JobQueue] Recovering stuck job %s (type=%s), age=%s", job.ID, job.Type, age)
			job.ErrorMsg = "recovered by sweeper"
			if err := q.requeueJob(ctx, job); err == nil {
				requeued = append(requeued, job.ID)
			}
		}
	}
	return requeued, nil
}

// worker processes jobs from the queue
func (q *Queue) worker(id int) {
	defer q.wg.Done()
	log.Infof("[JobQueue] Worker %d started", id)

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Infof("[JobQueue] Worker %d stopping", id)
			return
		default:
			// Acquire worker slot
			<-q.workerPool

			// Try to get a job from the queue
			job, err := q.dequeueJob(ctx)
			if err != nil {
				if !errors.Is(err, redis.Nil) {
					log.Errorf("[JobQueue] Worker %d: Error dequeuing job: %v", id, err)
					time.Sleep(q.opts.PollTimeout)
				}
				// Release worker slot and retry
				q.workerPool <- struct{}{}
				continue
			}

			if job != nil {
				log.Infof("[JobQueue] Worker %d processing job %s (Type: %s, attempt %d/%d)",
					id, job.ID, job.Type, job.Attempt(), job.MaxRetries)
				q.processJob(ctx, job)
			}

			// Release worker slot
			q.workerPool <- struct{}{}
		}
	}
}

// EnqueueJob adds a new job with a generated id to the queue
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	return q.EnqueueJobWithID(ctx, uuid.New().String(), jobType, payload)
}

// EnqueueJobWithID adds a new job to the queue under a caller chosen id
func (q *Queue) EnqueueJobWithID(ctx context.Context, id string, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:         id,
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		RetryCount: 0,
		MaxRetries: q.opts.MaxAttempts,
	}

	// Store job data
	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	jobKey := JobKeyPrefix + job.ID

	// Use a pipeline for atomic operations
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, jobKey, jobData, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued job %s (Type: %s)", job.ID, job.Type)
	return job, nil
}

// dequeueJob gets the next job from the queue
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	// Move job from pending queue to processing queue atomically
	jobID, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, q.opts.PollTimeout).Result()
	if err != nil {
		return nil, err
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		// Job data not found or invalid, remove from processing queue
		q.client.LRem(ctx, JobProcessingKey, 1, jobID)
		return nil, fmt.Errorf("job data not usable for ID %s: %w", jobID, err)
	}
	return job, nil
}

// processJob runs one attempt of a job and decides between completion, retry and failure
func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.updateJob(ctx, job)

	handler, ok := q.handler(job.Type)
	var err error
	retrying := false
	if !ok {
		err = Permanent(fmt.Errorf("unknown job type: %s", job.Type))
	} else {
		err = q.runHandler(ctx, handler, job)
	}

	if err != nil {
		log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
		job.MarkAsFailed(err.Error())

		// Check if job can be retried
		if !IsPermanent(err) && job.IsRetryable() {
			log.Infof("[JobQueue] Retrying job %s (Attempt %d/%d)", job.ID, job.Attempt(), job.MaxRetries)
			job.MarkAsRetrying()
			q.updateJob(ctx, job)
			q.metrics.ObserveJob(string(job.Type), metrics.OutcomeRetry)

			// The job stays in the processing list until the delayed push, so the
			// sweeper can recover it if this process dies during the backoff.
			retrying = true
			jobID := job.ID
			time.AfterFunc(q.retryDelay(job), func() {
				if _, err := q.moveToQueue(context.Background(), jobID, "LPUSH"); err != nil {
					log.Errorf("[JobQueue] Failed to re-enqueue job %s: %v", jobID, err)
				}
			})
		} else {
			log.Errorf("[JobQueue] Job %s permanently failed after %d attempts", job.ID, job.RetryCount)
			q.updateJobStats(ctx, JobStatusFailed, 1)
			q.metrics.ObserveJob(string(job.Type), metrics.OutcomeFailure)
			if ok {
				handler.OnFailure(context.WithoutCancel(ctx), job, err)
			}
		}
	} else {
		log.Infof("[JobQueue] Job %s completed successfully", job.ID)
		job.MarkAsCompleted()
		q.updateJobStats(ctx, JobStatusCompleted, 1)
		q.metrics.ObserveJob(string(job.Type), metrics.OutcomeSuccess)
		// Remove completed job from Redis entirely
		q.removeCompletedJob(ctx, job.ID)
	}

	if job.Status != JobStatusCompleted && !retrying {
		q.updateJob(ctx, job)
	}
	if !retrying {
		q.removeFromProcessing(ctx, job.ID)
	}
}

// retryDelay is the backoff before the next attempt of a failed job
func (q *Queue) retryDelay(job *Job) time.Duration {
	return q.opts.RetryBackoff * time.Duration(job.RetryCount)
}

// moveScript moves a job id from the processing list to the pending list only if it
// is still in the processing list, so a retry timer and the sweeper never both push it.
var moveScript = redis.NewScript(`
if redis.call("LREM", KEYS[1], 1, ARGV[1]) > 0 then
	redis.call(ARGV[2], KEYS[2], ARGV[1])
	return 1
end
return 0
`)

// moveToQueue pushes jobID back with push (LPUSH or RPUSH). moved is false when the id
// had already left the processing list.
func (q *Queue) moveToQueue(ctx context.Context, jobID, push string) (moved bool, err error) {
	n, err := moveScript.Run(ctx, q.client, []string{JobProcessingKey, JobQueueKey}, jobID, push).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// runHandler runs the handler under the job timeout and turns panics into errors
func (q *Queue) runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	jobCtx, cancel := context.WithTimeout(ctx, q.opts.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[JobQueue] Job %s panicked: %v", job.ID, r)
			err = Permanent(&PanicError{Value: r})
		}
	}()

	err = handler.Handle(jobCtx, job)
	if err != nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		return Permanent(fmt.Errorf("job timed out after %s: %w", q.opts.JobTimeout, err))
	}
	return err
}

// updateJob updates job data in Redis
func (q *Queue) updateJob(ctx context.Context, job *Job) {
	jobData, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}

	jobKey := JobKeyPrefix + job.ID
	if err := q.client.Set(ctx, jobKey, jobData, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

// requeueJob moves a job back to the pending queue and resets its status
func (q *Queue) requeueJob(ctx context.Context, job *Job) error {
	job.Status = JobStatusPending
	job.UpdatedAt = time.Now()
	q.updateJob(ctx, job)
	// Push to the consuming end of the queue
	if _, err := q.moveToQueue(ctx, job.ID, "RPUSH"); err != nil {
		log.Errorf("[JobQueue] Failed to requeue job %s: %v", job.ID, err)
		return err
	}
	return nil
}

// removeFromProcessing removes a job from the processing queue
func (q *Queue) removeFromProcessing(ctx context.Context, jobID string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, jobID).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing queue: %v", jobID, err)
	}
}

// removeCompletedJob completely removes a completed job from Redis
func (q *Queue) removeCompletedJob(ctx context.Context, jobID string) {
	jobKey := JobKeyPrefix + jobID
	if err := q.client.Del(ctx, jobKey).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove completed job %s from Redis: %v", jobID, err)
	} else {
		log.Debugf("[JobQueue] Successfully removed completed job %s from Redis", jobID)
	}
}

// updateJobStats updates job statistics
func (q *Queue) updateJobStats(ctx context.Context, status JobStatus, delta int64) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), delta).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobKey := JobKeyPrefix + jobID
	jobData, err := q.client.Get(ctx, jobKey).Result()
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// GetJobStats returns statistics about job statuses
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	stats, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[JobStatus]int64)
	for status, count := range stats {
		if countInt, err := json.Number(count).Int64(); err == nil {
			result[JobStatus(status)] = countInt
		}
	}

	return result, nil
}

// GetQueueSize returns the number of pending jobs
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs being processed
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}

// PublishDepth exports the pending and processing list lengths as metrics
func (q *Queue) PublishDepth(ctx context.Context) error {
	pending, err := q.GetQueueSize(ctx)
	if err != nil {
		return err
	}
	processing, err := q.GetProcessingSize(ctx)
	if err != nil {
		return err
	}
	q.metrics.SetQueueDepth("pending", pending)
	q.metrics.SetQueueDepth("processing", processing)
	return nil
}
