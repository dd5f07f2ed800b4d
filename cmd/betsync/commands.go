package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/cache"
	"github.com/ManuelReschke/BetSync/internal/pkg/config"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobqueue"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobstatus"
)

// watchInterval is how often status --watch polls
const watchInterval = 2 * time.Second

// syncOptions are the command line options of sync and estimate
type syncOptions struct {
	StartDate  string
	EndDate    string
	Channel    string
	DaysBack   int
	ChunkSize  int
	Background bool
}

// parseSyncArgs parses the date options. Only sync accepts --chunk-size and --background.
func parseSyncArgs(name string, args []string, withRunOptions bool) (syncOptions, error) {
	var opts syncOptions
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.StartDate, "start-date", "", "first day (YYYY-MM-DD)")
	fs.StringVar(&opts.EndDate, "end-date", "", "last day (YYYY-MM-DD)")
	fs.StringVar(&opts.Channel, "channel", "", "channel")
	fs.IntVar(&opts.DaysBack, "days-back", 1, "sync the day this many days ago when --start-date is omitted")
	if withRunOptions {
		fs.IntVar(&opts.ChunkSize, "chunk-size", 0, "groups per source page")
		fs.BoolVar(&opts.Background, "background", false, "queue the sync")
	}
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	if opts.DaysBack < 0 {
		return opts, errors.New("--days-back must not be negative")
	}
	if opts.ChunkSize < 0 {
		return opts, errors.New("--chunk-size must be positive")
	}
	return opts, nil
}

// request resolves the options against today. A missing start date is the day days-back
// days ago; a missing end date is the start date, so the default run covers one day.
func (opts syncOptions) request(now time.Time) (models.SyncRequest, error) {
	start := models.NewBetDate(now).Time.AddDate(0, 0, -opts.DaysBack)
	if opts.StartDate != "" {
		t, err := time.Parse(models.TrandateLayout, opts.StartDate)
		if err != nil {
			return models.SyncRequest{}, fmt.Errorf("invalid --start-date: %w", err)
		}
		start = t
	}
	end := start
	if opts.EndDate != "" {
		t, err := time.Parse(models.TrandateLayout, opts.EndDate)
		if err != nil {
			return models.SyncRequest{}, fmt.Errorf("invalid --end-date: %w", err)
		}
		end = t
	}
	return models.NewSyncRequest(start, end, opts.Channel), nil
}

// applyTo overrides the configured chunk sizes
func (opts syncOptions) applyTo(cfg *config.SyncConfig) {
	if opts.ChunkSize > 0 {
		cfg.ChunkSize = opts.ChunkSize
		cfg.BackgroundChunkSize = opts.ChunkSize
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runSync(cfg *config.SyncConfig, args []string) error {
	opts, err := parseSyncArgs("sync", args, true)
	if err != nil {
		return err
	}
	req, err := opts.request(time.Now())
	if err != nil {
		return err
	}
	opts.applyTo(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	a := newApplication(cfg)
	o := a.orchestrator

	if opts.Background {
		job, err := o.StartBackgroundSync(ctx, req, jobqueue.TriggerCLI)
		if err != nil {
			return err
		}
		fmt.Printf("Queued job %s (~%d records)\n", job.JobID, job.EstimatedRecords)
		fmt.Printf("Follow it with: betsync status %s --watch\n", job.JobID)
		return nil
	}

	estimated, err := o.EstimateRecordCount(ctx, req)
	if err != nil {
		return err
	}
	if estimated > cfg.LargeInlineWarning {
		log.Warnf("[BetSync] %s is estimated at %d records; consider --background", req, estimated)
	}

	fmt.Printf("Syncing %s (~%d records)\n", req, estimated)
	result, err := o.RunSync(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Processed %d records (%d skipped) in %.2fs, %.2f records/s\n",
		result.ProcessedRecords, result.SkippedRecords, result.ExecutionTimeSeconds, result.RecordsPerSecond)
	return nil
}

func runEstimate(cfg *config.SyncConfig, args []string) error {
	opts, err := parseSyncArgs("estimate", args, false)
	if err != nil {
		return err
	}
	req, err := opts.request(time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	a := newApplication(cfg)
	estimated, err := a.orchestrator.EstimateRecordCount(ctx, req)
	if err != nil {
		return err
	}
	mode := "inline"
	if estimated > cfg.BackgroundThreshold {
		mode = "background"
	}
	fmt.Printf("%s: ~%d records (%s)\n", req, estimated, mode)
	return nil
}

// parseStatusArgs accepts the job id before or after --watch
func parseStatusArgs(args []string) (jobID string, watch bool, err error) {
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		jobID, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&watch, "watch", false, "poll until the job finishes")
	if err := fs.Parse(args); err != nil {
		return "", false, err
	}
	if jobID == "" && fs.NArg() > 0 {
		jobID = fs.Arg(0)
	}
	if jobID == "" {
		return "", false, errors.New("usage: betsync status <jobId> [--watch]")
	}
	return jobID, watch, nil
}

// statusReader is the read side of the job status tracker
type statusReader interface {
	GetStatus(ctx context.Context, jobID string) (*jobstatus.SyncJobStatus, error)
}

func runStatus(cfg *config.SyncConfig, args []string) error {
	jobID, watch, err := parseStatusArgs(args)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	// status only needs the cache
	cache.SetupCache()
	tracker := jobstatus.NewTracker(cache.GetClient(), cfg.StatusTTL())

	if !watch {
		status, err := tracker.GetStatus(ctx, jobID)
		if err != nil {
			return err
		}
		printStatus(os.Stdout, status)
		return nil
	}

	status, err := watchStatus(ctx, tracker, jobID, watchInterval, os.Stdout)
	if err != nil {
		return err
	}
	if _, failed := status.State.(jobstatus.Failed); failed {
		return fmt.Errorf("job %s failed", jobID)
	}
	return nil
}

// watchStatus prints the status every interval until it is terminal
func watchStatus(ctx context.Context, r statusReader, jobID string, interval time.Duration, out io.Writer) (*jobstatus.SyncJobStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := r.GetStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		printStatus(out, status)
		if jobstatus.IsTerminal(status.State) {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printStatus(out io.Writer, s *jobstatus.SyncJobStatus) {
	switch st := s.State.(type) {
	case jobstatus.Queued:
		fmt.Fprintf(out, "%s queued at %s (~%d records)\n", s.JobID, st.QueuedAt.Format(time.RFC3339), st.EstimatedRecords)
	case jobstatus.Processing:
		fmt.Fprintf(out, "%s processing (attempt %d): %d/%d records (%.2f%%)\n",
			s.JobID, st.Attempt, st.ProcessedRecords, st.EstimatedRecords, st.ProgressPercentage)
	case jobstatus.Completed:
		fmt.Fprintf(out, "%s completed: %d records in %.2fs (%.2f records/s)\n",
			s.JobID, st.ProcessedRecords, st.ExecutionSeconds, st.RecordsPerSecond)
	case jobstatus.Failed:
		fmt.Fprintf(out, "%s failed after %d records (attempt %d): %s\n", s.JobID, st.ProcessedRecords, st.Attempt, st.Error)
	default:
		fmt.Fprintf(out, "%s: unknown state\n", s.JobID)
	}
}
