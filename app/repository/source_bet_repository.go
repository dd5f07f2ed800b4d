package repository

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/syncerr"
	"gorm.io/gorm"
)

const sourceStore = "source"

// Grouped aggregation of raw events into one row per (bettor, channel, day).
// win_lose 0 means the house won the stake, 1 means it paid stake * payout, anything else is void.
const aggregateSelect = `b.created_by AS created_by,
	u.fullusername AS fullusername,
	c.id AS channel_id,
	c.channel_name AS channel_name,
	DATE(b.created_at) AS bet_date,
	COUNT(*) AS total_bets,
	MIN(b.bet_amount) AS min_bet,
	MAX(b.bet_amount) AS max_bet,
	SUM(b.bet_amount) AS turnover,
	SUM(CASE
		WHEN b.win_lose = 0 THEN b.bet_amount
		WHEN b.win_lose = 1 THEN -(b.bet_amount * b.payout)
		ELSE 0
	END) AS total_win_lose_amount`

const aggregateGroupBy = "b.created_by, u.fullusername, c.id, c.channel_name, DATE(b.created_at)"

const aggregateOrderBy = "b.created_by ASC, c.id ASC, DATE(b.created_at) ASC"

// Rows strictly after the cursor in (created_by, channel_id, day) order.
const keysetCondition = `(b.created_by > ? OR (b.created_by = ? AND (b.channel_id > ? OR (b.channel_id = ? AND DATE(b.created_at) > ?))))`

// sourceBetRepository implements the SourceBetRepository interface
type sourceBetRepository struct {
	db *gorm.DB
}

// NewSourceBetRepository creates a new source bet repository instance
func NewSourceBetRepository(db *gorm.DB) SourceBetRepository {
	return &sourceBetRepository{db: db}
}

func (r *sourceBetRepository) filtered(ctx context.Context, req models.SyncRequest) *gorm.DB {
	from, to := req.Window()
	q := r.db.WithContext(ctx).
		Table("bets AS b").
		Joins("JOIN v_user u ON u.id = b.created_by").
		Joins("JOIN channels c ON c.id = b.channel_id").
		Where("b.created_at >= ? AND b.created_at < ?", from, to)
	if req.Channel != "" {
		q = q.Where("c.channel_name = ?", req.Channel)
	}
	return q
}

// FetchAggregatedChunk returns at most limit groups that sort after the cursor. A nil cursor starts at the beginning.
func (r *sourceBetRepository) FetchAggregatedChunk(ctx context.Context, req models.SyncRequest, after *models.Cursor, limit int) ([]models.AggregatedBetRow, error) {
	q := r.filtered(ctx, req).Select(aggregateSelect)
	if after != nil {
		q = q.Where(keysetCondition, after.BettorID, after.BettorID, after.ChannelID, after.ChannelID, after.BetDate)
	}

	var rows []models.AggregatedBetRow
	err := q.Group(aggregateGroupBy).Order(aggregateOrderBy).Limit(limit).Scan(&rows).Error
	if err != nil {
		if syncerr.IsConnectivity(err) {
			return nil, syncerr.Classify(sourceStore, "fetch aggregated chunk", err)
		}
		return nil, fmt.Errorf("fetch aggregated chunk: %w", err)
	}
	return rows, nil
}

// CountGroups counts the groups the aggregation would produce without materializing them
func (r *sourceBetRepository) CountGroups(ctx context.Context, req models.SyncRequest) (int64, error) {
	sub := r.filtered(ctx, req).Select("b.created_by").Group(aggregateGroupBy)

	var count int64
	err := r.db.WithContext(ctx).Raw("SELECT COUNT(*) FROM (?) AS g", sub).Scan(&count).Error
	if err != nil {
		return 0, syncerr.Classify(sourceStore, "count groups", err)
	}
	return count, nil
}

// CountEvents counts the raw events in the window
func (r *sourceBetRepository) CountEvents(ctx context.Context, req models.SyncRequest) (int64, error) {
	from, to := req.Window()
	q := r.db.WithContext(ctx).Table("bets AS b").
		Where("b.created_at >= ? AND b.created_at < ?", from, to)
	if req.Channel != "" {
		q = q.Joins("JOIN channels c ON c.id = b.channel_id").Where("c.channel_name = ?", req.Channel)
	}

	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, syncerr.Classify(sourceStore, "count events", err)
	}
	return count, nil
}

// Ping checks that the source connection is usable
func (r *sourceBetRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.db, sourceStore)
}

func ping(ctx context.Context, db *gorm.DB, store string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return syncerr.Classify(store, "ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return &syncerr.ConnectivityError{Store: store, Op: "ping", Err: err}
	}
	return nil
}
