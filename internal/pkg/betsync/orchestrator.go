package betsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/config"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobqueue"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobstatus"
	"github.com/ManuelReschke/BetSync/internal/pkg/metrics"
	"github.com/ManuelReschke/BetSync/internal/pkg/syncerr"
)

// JobIDPrefix prefixes every background sync job id
const JobIDPrefix = "sync_bets_"

// Execution modes returned by Sync
const (
	ModeInline     = metrics.ModeInline
	ModeBackground = metrics.ModeBackground
)

// Source is the part of the source store the orchestrator reads from
type Source interface {
	SourceReader
	CountGroups(ctx context.Context, req models.SyncRequest) (int64, error)
	CountEvents(ctx context.Context, req models.SyncRequest) (int64, error)
}

// Dispatcher hands a background sync over to a worker
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string, payload jobqueue.SyncBetsJobPayload) error
}

// SyncResult is the summary of a finished inline run
type SyncResult struct {
	ProcessedRecords     int64   `json:"processed_records"`
	SkippedRecords       int64   `json:"skipped_records"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	RecordsPerSecond     float64 `json:"records_per_second"`
}

// BackgroundSync identifies a dispatched run
type BackgroundSync struct {
	JobID            string `json:"job_id"`
	EstimatedRecords int64  `json:"estimated_records"`
}

// SyncOutcome is what Sync did with a request: exactly one of Result and Job is set
type SyncOutcome struct {
	Mode             string          `json:"mode"`
	EstimatedRecords int64           `json:"estimated_records"`
	Result           *SyncResult     `json:"result,omitempty"`
	Job              *BackgroundSync `json:"job,omitempty"`
}

// Orchestrator estimates a request, routes it inline or to the background queue and
// reports the status of background runs.
type Orchestrator struct {
	source     Source
	writer     RecordWriter
	tracker    *jobstatus.Tracker
	dispatcher Dispatcher
	cfg        *config.SyncConfig
	metrics    *metrics.Manager
	now        func() time.Time
	newJobID   func() string
}

// NewOrchestrator wires the pipeline. A nil cfg uses the defaults.
func NewOrchestrator(source Source, writer RecordWriter, tracker *jobstatus.Tracker, dispatcher Dispatcher, cfg *config.SyncConfig) *Orchestrator {
	if cfg == nil {
		cfg = config.New()
	}
	return &Orchestrator{
		source:     source,
		writer:     writer,
		tracker:    tracker,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    metrics.Default(),
		now:        time.Now,
		newJobID: func() string {
			return JobIDPrefix + uuid.New().String()
		},
	}
}

// WithClock replaces the clock stamped on records
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// WithJobIDs replaces the job id generator
func (o *Orchestrator) WithJobIDs(next func() string) *Orchestrator {
	o.newJobID = next
	return o
}

// WithMetrics replaces the metrics manager
func (o *Orchestrator) WithMetrics(m *metrics.Manager) *Orchestrator {
	o.metrics = m
	return o
}

// Config returns the configuration the orchestrator runs with
func (o *Orchestrator) Config() *config.SyncConfig { return o.cfg }

// Normalize validates the date range and the channel and upper-cases the channel
func (o *Orchestrator) Normalize(req models.SyncRequest) (models.SyncRequest, error) {
	if err := req.Validate(); err != nil {
		return req, fmt.Errorf("%w: %v", syncerr.ErrInvalidRequest, err)
	}
	req = models.NewSyncRequest(req.StartDate, req.EndDate, strings.ToUpper(strings.TrimSpace(req.Channel)))
	if req.Channel != "" && !o.cfg.IsChannelAllowed(req.Channel) {
		return req, fmt.Errorf("%w: %s (allowed: %s)", syncerr.ErrChannelForbidden, req.Channel, strings.Join(o.cfg.Channels(), ", "))
	}
	return req, nil
}

// EstimateRecordCount returns the number of groups a sync of req would write. Short ranges
// are counted exactly; long ranges, or a failed exact count, use events per group.
func (o *Orchestrator) EstimateRecordCount(ctx context.Context, req models.SyncRequest) (int64, error) {
	req, err := o.Normalize(req)
	if err != nil {
		return 0, err
	}
	return o.estimate(ctx, req)
}

func (o *Orchestrator) estimate(ctx context.Context, req models.SyncRequest) (int64, error) {
	var exactErr error
	if req.Days() <= o.cfg.EstimateExactMaxDays {
		n, err := o.source.CountGroups(ctx, req)
		if err == nil {
			o.metrics.ObserveEstimate("exact")
			return n, nil
		}
		exactErr = err
		log.Warnf("[BetSync] Exact estimate for %s failed, falling back to event count: %v", req, err)
	}

	events, err := o.source.CountEvents(ctx, req)
	if err != nil {
		return 0, &syncerr.EstimationError{Err: errors.Join(exactErr, err)}
	}
	if exactErr != nil {
		o.metrics.ObserveEstimate("fallback")
	} else {
		o.metrics.ObserveEstimate("approximate")
	}
	per := int64(o.cfg.EstimateEventsPerGroup)
	return (events + per - 1) / per, nil
}

func (o *Orchestrator) inlineOptions() ExecutorOptions {
	return ExecutorOptions{
		ChunkSize:        o.cfg.ChunkSize,
		BatchSize:        o.cfg.BatchSize,
		ProgressInterval: o.cfg.ProgressInterval,
		Validate:         o.cfg.EnableValidation,
		SkipInvalid:      o.cfg.SkipInvalidRecords,
	}
}

func (o *Orchestrator) backgroundOptions() ExecutorOptions {
	return ExecutorOptions{
		ChunkSize:        o.cfg.BackgroundChunkSize,
		BatchSize:        o.cfg.BackgroundBatchSize,
		ProgressInterval: o.cfg.BackgroundProgressInterval,
		Validate:         o.cfg.EnableValidation,
		SkipInvalid:      o.cfg.SkipInvalidRecords,
	}
}

// execute runs one executor and records the run metrics
func (o *Orchestrator) execute(ctx context.Context, req models.SyncRequest, mode string, opts ExecutorOptions, progress ProgressFunc) (*Result, error) {
	executor := NewExecutor(o.source, o.writer, opts).WithClock(o.now).WithMetrics(o.metrics)
	result, err := executor.Run(ctx, req, progress)

	var processed int64
	var elapsed time.Duration
	if result != nil {
		processed, elapsed = result.ProcessedRecords, result.Elapsed
	}
	o.metrics.ObserveSyncRun(mode, processed, elapsed, err)

	if threshold := o.cfg.SlowSyncThreshold(); threshold > 0 && elapsed > threshold {
		log.Warnf("[BetSync] Slow sync %s (%s mode): %s for %d records", req, mode, elapsed, processed)
	}
	return result, err
}

// RunSync runs req to completion on the calling goroutine
func (o *Orchestrator) RunSync(ctx context.Context, req models.SyncRequest) (*SyncResult, error) {
	req, err := o.Normalize(req)
	if err != nil {
		return nil, err
	}
	return o.runInline(ctx, req, ModeInline)
}

func (o *Orchestrator) runInline(ctx context.Context, req models.SyncRequest, mode string) (*SyncResult, error) {
	result, err := o.execute(ctx, req, mode, o.inlineOptions(), nil)
	if err != nil {
		return nil, err
	}
	return &SyncResult{
		ProcessedRecords:     result.ProcessedRecords,
		SkippedRecords:       result.SkippedRecords,
		ExecutionTimeSeconds: result.Elapsed.Seconds(),
		RecordsPerSecond:     result.Throughput(),
	}, nil
}

// StartBackgroundSync estimates req and dispatches it without waiting for the run
func (o *Orchestrator) StartBackgroundSync(ctx context.Context, req models.SyncRequest, trigger string) (*BackgroundSync, error) {
	req, err := o.Normalize(req)
	if err != nil {
		return nil, err
	}
	estimated, err := o.estimate(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.startBackground(ctx, req, estimated, trigger)
}

func (o *Orchestrator) startBackground(ctx context.Context, req models.SyncRequest, estimated int64, trigger string) (*BackgroundSync, error) {
	jobID := o.newJobID()
	if err := o.tracker.MarkQueued(ctx, jobID, estimated); err != nil {
		return nil, fmt.Errorf("record queued status for %s: %w", jobID, err)
	}

	payload := jobqueue.NewSyncBetsJobPayload(req, estimated, trigger)
	if err := o.dispatcher.Dispatch(ctx, jobID, payload); err != nil {
		if markErr := o.tracker.MarkFailed(context.WithoutCancel(ctx), jobID, 0, err, 0); markErr != nil {
			log.Errorf("[BetSync] Could not mark job %s failed: %v", jobID, markErr)
		}
		return nil, fmt.Errorf("dispatch sync job %s: %w", jobID, err)
	}

	log.Infof("[BetSync] Dispatched background sync %s for %s (~%d records, trigger=%s)", jobID, req, estimated, trigger)
	return &BackgroundSync{JobID: jobID, EstimatedRecords: estimated}, nil
}

// GetSyncStatus returns the status of a background run, or jobstatus.ErrNotFound
func (o *Orchestrator) GetSyncStatus(ctx context.Context, jobID string) (*jobstatus.SyncJobStatus, error) {
	return o.tracker.GetStatus(ctx, jobID)
}

// Sync estimates req and runs it inline when the estimate is at most the background
// threshold, otherwise in the background.
func (o *Orchestrator) Sync(ctx context.Context, req models.SyncRequest, trigger string) (*SyncOutcome, error) {
	req, err := o.Normalize(req)
	if err != nil {
		return nil, err
	}
	estimated, err := o.estimate(ctx, req)
	if err != nil {
		return nil, err
	}

	if estimated <= o.cfg.BackgroundThreshold {
		log.Infof("[BetSync] Running %s inline (~%d records)", req, estimated)
		result, err := o.runInline(ctx, req, ModeInline)
		if err != nil {
			return nil, err
		}
		return &SyncOutcome{Mode: ModeInline, EstimatedRecords: estimated, Result: result}, nil
	}

	job, err := o.startBackground(ctx, req, estimated, trigger)
	if err != nil {
		return nil, err
	}
	return &SyncOutcome{Mode: ModeBackground, EstimatedRecords: estimated, Job: job}, nil
}

// Register installs the background sync handler on queue
func (o *Orchestrator) Register(queue *jobqueue.Queue) {
	queue.RegisterHandler(jobqueue.JobTypeSyncBets, &syncJobHandler{o: o})
}

// syncJobHandler runs dispatched syncs on queue workers
type syncJobHandler struct {
	o *Orchestrator
}

func (h *syncJobHandler) Handle(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.SyncBetsJobPayloadFromMap(job.Payload)
	if err != nil {
		return jobqueue.Permanent(fmt.Errorf("%w: decode payload: %v", syncerr.ErrInvalidRequest, err))
	}
	req, err := payload.Request()
	if err != nil {
		return jobqueue.Permanent(fmt.Errorf("%w: %v", syncerr.ErrInvalidRequest, err))
	}

	tracker := h.o.tracker
	if err := tracker.MarkProcessing(ctx, job.ID, payload.EstimatedRecords, job.Attempt()); err != nil {
		log.Warnf("[BetSync] Could not mark job %s processing: %v", job.ID, err)
	}

	progress := func(ctx context.Context, processed int64) {
		if err := tracker.UpdateProgress(ctx, job.ID, processed); err != nil {
			log.Warnf("[BetSync] Could not update progress of job %s: %v", job.ID, err)
		}
	}

	result, err := h.o.execute(ctx, req, ModeBackground, h.o.backgroundOptions(), progress)
	if err != nil {
		if result != nil && result.ProcessedRecords > 0 {
			progress(context.WithoutCancel(ctx), result.ProcessedRecords)
		}
		if !syncerr.Retryable(err) {
			return jobqueue.Permanent(err)
		}
		return err
	}

	if err := tracker.MarkCompleted(context.WithoutCancel(ctx), job.ID, result.ProcessedRecords); err != nil {
		log.Errorf("[BetSync] Could not mark job %s completed: %v", job.ID, err)
	}
	return nil
}

func (h *syncJobHandler) OnFailure(ctx context.Context, job *jobqueue.Job, err error) {
	if markErr := h.o.tracker.MarkFailed(ctx, job.ID, 0, err, job.RetryCount); markErr != nil {
		log.Errorf("[BetSync] Could not mark job %s failed: %v", job.ID, markErr)
	}
}

// QueueDispatcher enqueues background syncs on the Redis job queue
type QueueDispatcher struct {
	Queue *jobqueue.Queue
}

func (d QueueDispatcher) Dispatch(ctx context.Context, jobID string, payload jobqueue.SyncBetsJobPayload) error {
	_, err := d.Queue.EnqueueJobWithID(ctx, jobID, jobqueue.JobTypeSyncBets, payload.ToMap())
	return err
}
