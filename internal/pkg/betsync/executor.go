package betsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/metrics"
	"github.com/ManuelReschke/BetSync/internal/pkg/syncerr"
)

// SourceReader pages through aggregated source rows
type SourceReader interface {
	FetchAggregatedChunk(ctx context.Context, req models.SyncRequest, after *models.Cursor, limit int) ([]models.AggregatedBetRow, error)
}

// RecordWriter commits one batch of rollup records atomically
type RecordWriter interface {
	UpsertBatch(ctx context.Context, records []models.Bet) error
}

// ProgressFunc is called whenever the processed count crosses a multiple of the progress interval
type ProgressFunc func(ctx context.Context, processed int64)

// RunState is the lifecycle of an Executor
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// ExecutorOptions sizes one run. Chunk and batch size are independent.
type ExecutorOptions struct {
	ChunkSize        int
	BatchSize        int
	ProgressInterval int
	Validate         bool
	SkipInvalid      bool
}

// Result summarizes a run
type Result struct {
	ProcessedRecords int64
	SkippedRecords   int64
	Chunks           int
	Batches          int
	Elapsed          time.Duration
}

// Throughput returns processed records per second
func (r *Result) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.ProcessedRecords) / r.Elapsed.Seconds()
}

// Executor streams aggregated rows from the source into the destination in bounded memory
type Executor struct {
	reader      SourceReader
	writer      RecordWriter
	opts        ExecutorOptions
	transformer Transformer
	metrics     *metrics.Manager
	now         func() time.Time

	mu    sync.Mutex
	state RunState
}

// NewExecutor creates an idle executor
func NewExecutor(reader SourceReader, writer RecordWriter, opts ExecutorOptions) *Executor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 5000
	}
	return &Executor{
		reader:      reader,
		writer:      writer,
		opts:        opts,
		transformer: Transformer{Validate: opts.Validate},
		metrics:     metrics.Default(),
		now:         time.Now,
		state:       StateIdle,
	}
}

// WithClock replaces the clock used for timestamps and elapsed time
func (e *Executor) WithClock(now func() time.Time) *Executor {
	e.now = now
	return e
}

// WithMetrics replaces the metrics manager
func (e *Executor) WithMetrics(m *metrics.Manager) *Executor {
	e.metrics = m
	return e
}

// State returns the current lifecycle state
func (e *Executor) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Executor) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return syncerr.ErrAlreadyRunning
	}
	e.state = StateRunning
	return nil
}

func (e *Executor) finish(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = StateFailed
	} else {
		e.state = StateCompleted
	}
}

// Run syncs req. Batches committed before a failure stay committed. The context is
// checked before every chunk, so cancelling it stops the run at the next page.
func (e *Executor) Run(ctx context.Context, req models.SyncRequest, progress ProgressFunc) (*Result, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}

	started := e.now()
	result := &Result{}
	err := e.run(ctx, req, progress, result)
	result.Elapsed = e.now().Sub(started)
	e.finish(err)

	if err != nil {
		log.Errorf("[BetSync] Sync %s failed after %d records: %v", req, result.ProcessedRecords, err)
		return result, err
	}
	log.Infof("[BetSync] Sync %s finished: %d records in %d batches (%d chunks, %d skipped) in %s",
		req, result.ProcessedRecords, result.Batches, result.Chunks, result.SkippedRecords, result.Elapsed)
	return result, nil
}

func (e *Executor) run(ctx context.Context, req models.SyncRequest, progress ProgressFunc, result *Result) error {
	interval := int64(e.opts.ProgressInterval)
	nextReport := interval
	batch := NewBatch(e.opts.BatchSize)

	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		consumed := int64(batch.Len())
		records := batch.Drain()
		result.Batches++

		err := e.writer.UpsertBatch(ctx, records)
		e.metrics.ObserveBatch(len(records), err)
		if err != nil {
			return &syncerr.BatchCommitError{Batch: result.Batches, Size: len(records), Err: err}
		}

		result.ProcessedRecords += consumed
		if result.ProcessedRecords >= nextReport {
			log.Infof("[BetSync] Sync %s progress: %d records", req, result.ProcessedRecords)
			if progress != nil {
				progress(ctx, result.ProcessedRecords)
			}
			nextReport = (result.ProcessedRecords/interval + 1) * interval
		}
		return nil
	}

	var cursor *models.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync interrupted after %d chunks: %w", result.Chunks, err)
		}

		rows, err := e.reader.FetchAggregatedChunk(ctx, req, cursor, e.opts.ChunkSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}
		result.Chunks++

		for _, row := range rows {
			record, err := e.transformer.Transform(row, e.now())
			if err != nil {
				if e.opts.SkipInvalid && errors.Is(err, syncerr.ErrTransformation) {
					result.SkippedRecords++
					e.metrics.IncSkipped()
					log.Warnf("[BetSync] Skipping row: %v", err)
					continue
				}
				return err
			}
			batch.Add(record)
			if batch.Full() {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		if len(rows) < e.opts.ChunkSize {
			break
		}
		cursor = models.CursorOf(rows[len(rows)-1])
	}

	return flush()
}
