package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func TestFetchAggregatedChunk_AggregatesOneGroup(t *testing.T) {
	db := testutil.NewSourceDB(t)
	testutil.NewSourceFixture(t, db).
		User(7, "ALICE2024").
		Channel(1, "VN").
		Bet(7, 1, "50", models.OutcomeHouseLoses, "1.5", day.Add(9*time.Hour)).
		Bet(7, 1, "30", models.OutcomeHouseWins, "0", day.Add(18*time.Hour))

	repo := NewSourceBetRepository(db)
	rows, err := repo.FetchAggregatedChunk(context.Background(), models.NewSyncRequest(day, day, ""), nil, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, uint64(7), row.BettorID)
	assert.Equal(t, "ALICE2024", row.Fullusername)
	assert.Equal(t, uint64(1), row.ChannelID)
	assert.Equal(t, "VN", row.ChannelName)
	assert.Equal(t, "2024-01-15", row.BetDate.String())
	assert.Equal(t, int64(2), row.TotalBets)
	assertDecimal(t, "30", row.MinBet)
	assertDecimal(t, "50", row.MaxBet)
	assertDecimal(t, "80", row.Turnover)
	assertDecimal(t, "-45", row.WinLose)
}

func TestFetchAggregatedChunk_WinLoseSign(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		outcome int
		payout  string
		want    string
	}{
		{"house wins adds stake", "100", models.OutcomeHouseWins, "2", "100"},
		{"house loses subtracts stake times payout", "100", models.OutcomeHouseLoses, "2", "-200"},
		{"void contributes nothing", "100", 2, "2", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewSourceDB(t)
			testutil.NewSourceFixture(t, db).
				User(1, "BOB").
				Channel(1, "TH").
				Bet(1, 1, tt.amount, tt.outcome, tt.payout, day.Add(time.Hour))

			rows, err := NewSourceBetRepository(db).FetchAggregatedChunk(context.Background(), models.NewSyncRequest(day, day, ""), nil, 10)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assertDecimal(t, tt.want, rows[0].WinLose)
			assertDecimal(t, tt.amount, rows[0].Turnover)
		})
	}
}

func TestFetchAggregatedChunk_ExclusiveEndAndChannelFilter(t *testing.T) {
	db := testutil.NewSourceDB(t)
	testutil.NewSourceFixture(t, db).
		User(1, "CAROL").
		Channel(1, "VN").
		Channel(2, "MY").
		Bet(1, 1, "10", models.OutcomeHouseWins, "0", day).
		Bet(1, 1, "20", models.OutcomeHouseWins, "0", day.Add(24*time.Hour-time.Second)).
		Bet(1, 1, "40", models.OutcomeHouseWins, "0", day.Add(24*time.Hour)).
		Bet(1, 2, "80", models.OutcomeHouseWins, "0", day.Add(time.Hour))

	repo := NewSourceBetRepository(db)
	ctx := context.Background()

	rows, err := repo.FetchAggregatedChunk(ctx, models.NewSyncRequest(day, day, "VN"), nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].TotalBets)
	assertDecimal(t, "30", rows[0].Turnover)

	events, err := repo.CountEvents(ctx, models.NewSyncRequest(day, day, "VN"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), events)

	events, err = repo.CountEvents(ctx, models.NewSyncRequest(day, day, ""))
	require.NoError(t, err)
	assert.Equal(t, int64(3), events)
}

func TestFetchAggregatedChunk_KeysetPaging(t *testing.T) {
	db := testutil.NewSourceDB(t)
	fixture := testutil.NewSourceFixture(t, db).Channel(1, "VN").Channel(2, "TH")
	for user := uint64(1); user <= 3; user++ {
		fixture.User(user, fmt.Sprintf("user%03d", user))
		for channel := uint64(1); channel <= 2; channel++ {
			for d := 0; d < 2; d++ {
				at := day.AddDate(0, 0, d).Add(time.Duration(user) * time.Hour)
				fixture.Bet(user, channel, "10", models.OutcomeHouseWins, "0", at)
				fixture.Bet(user, channel, "15", models.OutcomeHouseLoses, "1", at.Add(time.Minute))
			}
		}
	}

	repo := NewSourceBetRepository(db)
	req := models.NewSyncRequest(day, day.AddDate(0, 0, 1), "")
	ctx := context.Background()

	groups, err := repo.CountGroups(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(12), groups)

	var (
		cursor *models.Cursor
		pages  []int
		seen   = map[models.Cursor]bool{}
		last   *models.Cursor
	)
	for {
		rows, err := repo.FetchAggregatedChunk(ctx, req, cursor, 5)
		require.NoError(t, err)
		if len(rows) == 0 {
			break
		}
		pages = append(pages, len(rows))
		for _, row := range rows {
			c := models.CursorOf(row)
			assert.False(t, seen[*c], "group %+v returned twice", *c)
			seen[*c] = true
			if last != nil {
				assert.True(t, cursorLess(*last, *c), "%+v should sort before %+v", *last, *c)
			}
			last = c
			assert.Equal(t, int64(2), row.TotalBets)
			assertDecimal(t, "-5", row.WinLose)
		}
		cursor = models.CursorOf(rows[len(rows)-1])
	}

	assert.Equal(t, []int{5, 5, 2}, pages)
	assert.Len(t, seen, 12)
}

func cursorLess(a, b models.Cursor) bool {
	if a.BettorID != b.BettorID {
		return a.BettorID < b.BettorID
	}
	if a.ChannelID != b.ChannelID {
		return a.ChannelID < b.ChannelID
	}
	return a.BetDate < b.BetDate
}

func TestCountGroups_Empty(t *testing.T) {
	db := testutil.NewSourceDB(t)
	count, err := NewSourceBetRepository(db).CountGroups(context.Background(), models.NewSyncRequest(day, day, ""))
	require.NoError(t, err)
	assert.Zero(t, count)
}
