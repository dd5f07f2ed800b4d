package betsync

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/jobqueue"
)

var testDay = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// aggregatedRow returns a valid group for bettor id with one 100 wager won by the house
func aggregatedRow(id uint64, account string) models.AggregatedBetRow {
	return models.AggregatedBetRow{
		BettorID:     id,
		Fullusername: account,
		ChannelID:    1,
		ChannelName:  "VN",
		BetDate:      models.NewBetDate(testDay),
		TotalBets:    1,
		MinBet:       dec("100"),
		MaxBet:       dec("100"),
		Turnover:     dec("100"),
		WinLose:      dec("100"),
	}
}

func aggregatedRows(n int) []models.AggregatedBetRow {
	rows := make([]models.AggregatedBetRow, 0, n)
	for i := 1; i <= n; i++ {
		rows = append(rows, aggregatedRow(uint64(i), "PLAYER"+string(rune('A'+i-1))))
	}
	return rows
}

// fakeSource pages through rows by keyset cursor
type fakeSource struct {
	mu        sync.Mutex
	rows      []models.AggregatedBetRow
	fetches   int
	fetchErr  error
	groups    int64
	groupsErr error
	events    int64
	eventsErr error
	// block, when set, holds every fetch until it is closed
	block chan struct{}
}

func (s *fakeSource) FetchAggregatedChunk(ctx context.Context, _ models.SyncRequest, after *models.Cursor, limit int) ([]models.AggregatedBetRow, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	start := 0
	if after != nil {
		for i, row := range s.rows {
			if *models.CursorOf(row) == *after {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return append([]models.AggregatedBetRow(nil), s.rows[start:end]...), nil
}

func (s *fakeSource) CountGroups(context.Context, models.SyncRequest) (int64, error) {
	return s.groups, s.groupsErr
}

func (s *fakeSource) CountEvents(context.Context, models.SyncRequest) (int64, error) {
	return s.events, s.eventsErr
}

func (s *fakeSource) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// fakeWriter records committed batches. Batch number failOn (1-based) fails with err.
type fakeWriter struct {
	mu      sync.Mutex
	batches [][]models.Bet
	failOn  int
	err     error
	calls   int
}

func (w *fakeWriter) UpsertBatch(_ context.Context, records []models.Bet) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failOn > 0 && w.calls == w.failOn {
		return w.err
	}
	w.batches = append(w.batches, append([]models.Bet(nil), records...))
	return nil
}

func (w *fakeWriter) Batches() [][]models.Bet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batches
}

// fakeDispatcher remembers dispatched payloads
type fakeDispatcher struct {
	mu       sync.Mutex
	err      error
	jobIDs   []string
	payloads []jobqueue.SyncBetsJobPayload
}

func (d *fakeDispatcher) Dispatch(_ context.Context, jobID string, payload jobqueue.SyncBetsJobPayload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobIDs = append(d.jobIDs, jobID)
	d.payloads = append(d.payloads, payload)
	return nil
}
