package main

import (
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/BetSync/app/repository"
	"github.com/ManuelReschke/BetSync/internal/pkg/betsync"
	"github.com/ManuelReschke/BetSync/internal/pkg/cache"
	"github.com/ManuelReschke/BetSync/internal/pkg/config"
	"github.com/ManuelReschke/BetSync/internal/pkg/database"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobqueue"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobstatus"
)

// application holds the wired pipeline shared by every command
type application struct {
	cfg          *config.SyncConfig
	client       *redis.Client
	queue        *jobqueue.Queue
	orchestrator *betsync.Orchestrator
}

// queueOptions maps the sync config onto the job queue
func queueOptions(cfg *config.SyncConfig) jobqueue.Options {
	opts := jobqueue.DefaultOptions()
	opts.Workers = cfg.QueueWorkers
	opts.MaxAttempts = cfg.JobTries
	opts.JobTimeout = cfg.JobTimeout()
	opts.RetryBackoff = cfg.RetryBackoff
	return opts
}

// newApplication connects both databases and the cache and wires the orchestrator to the queue
func newApplication(cfg *config.SyncConfig) *application {
	database.SetupDatabase()
	database.SetupSourceDatabase()
	cache.SetupCache()

	client := cache.GetClient()
	repository.InitializeFactory(database.GetSourceDB(), database.GetDB(), cfg.UpsertStatementSize)
	repos := repository.GetGlobalFactory()

	queue := jobqueue.NewQueue(client, queueOptions(cfg))
	tracker := jobstatus.NewTracker(client, cfg.StatusTTL())
	o := betsync.NewOrchestrator(repos.GetSourceBetRepository(), repos.GetBetRepository(), tracker, betsync.QueueDispatcher{Queue: queue}, cfg)
	o.Register(queue)

	return &application{
		cfg:          cfg,
		client:       client,
		queue:        queue,
		orchestrator: o,
	}
}

// manager wraps the queue and, when asked, the scheduled sync
func (a *application) manager(withSchedule bool) *jobqueue.Manager {
	m := jobqueue.InitializeManager(a.queue)
	if withSchedule && a.cfg.ScheduleEnabled {
		lock := cache.NewLock(a.client, betsync.ScheduleLockKey, a.cfg.JobTimeout())
		m.AddPeriodicTask(betsync.NewScheduler(a.orchestrator, lock).Task())
	}
	return m
}
