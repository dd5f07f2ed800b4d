package betsync

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobqueue"
	"github.com/ManuelReschke/BetSync/internal/pkg/metrics"
)

// ScheduleLockKey holds the lease of the scheduled run in flight
const ScheduleLockKey = "betsync:schedule:lock"

// Locker is a lease that at most one holder owns at a time
type Locker interface {
	TryAcquire(ctx context.Context) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}

// Scheduler runs the recurring sync of the most recent days. A tick that finds the
// previous run still holding the lock does nothing.
type Scheduler struct {
	o    *Orchestrator
	lock Locker
}

// NewScheduler creates a scheduler. The lock should expire after the job timeout.
func NewScheduler(o *Orchestrator, lock Locker) *Scheduler {
	return &Scheduler{o: o, lock: lock}
}

// Request returns today's range extended by schedule_days_back, for the default channel
func (s *Scheduler) Request() models.SyncRequest {
	today := models.NewBetDate(s.o.now()).Time
	return models.NewSyncRequest(today.AddDate(0, 0, -s.o.cfg.ScheduleDaysBack), today, s.o.cfg.DefaultChannel)
}

// RunOnce runs one scheduled sync. ran is false when the previous run still holds the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (ran bool, err error) {
	m := s.o.metrics

	token, ok, err := s.lock.TryAcquire(ctx)
	if err != nil {
		m.ObserveScheduledRun(metrics.OutcomeFailure)
		return false, err
	}
	if !ok {
		log.Infof("[Scheduler] Previous scheduled sync still running, skipping")
		m.ObserveScheduledRun(metrics.OutcomeSkipped)
		return false, nil
	}
	defer func() {
		if releaseErr := s.lock.Release(context.WithoutCancel(ctx), token); releaseErr != nil {
			log.Errorf("[Scheduler] Could not release schedule lock: %v", releaseErr)
		}
	}()

	req, err := s.o.Normalize(s.Request())
	if err != nil {
		m.ObserveScheduledRun(metrics.OutcomeFailure)
		return true, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.o.cfg.JobTimeout())
	defer cancel()

	log.Infof("[Scheduler] Starting scheduled sync %s", req)
	result, err := s.o.runInline(runCtx, req, metrics.ModeScheduled)
	if err != nil {
		m.ObserveScheduledRun(metrics.OutcomeFailure)
		return true, err
	}
	m.ObserveScheduledRun(metrics.OutcomeSuccess)
	log.Infof("[Scheduler] Scheduled sync %s done: %d records, %.2f records/s",
		req, result.ProcessedRecords, result.RecordsPerSecond)
	return true, nil
}

// Task wraps RunOnce for the job queue manager
func (s *Scheduler) Task() jobqueue.PeriodicTask {
	return jobqueue.PeriodicTask{
		Name:     "scheduled-sync",
		Interval: s.o.cfg.ScheduleInterval,
		Run: func(ctx context.Context) error {
			_, err := s.RunOnce(ctx)
			return err
		},
	}
}
