package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/syncerr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	destinationStore     = "destination"
	defaultStatementSize = 250
)

// betRepository implements the BetRepository interface
type betRepository struct {
	db            *gorm.DB
	statementSize int
}

// NewBetRepository creates a new rollup repository. statementSize bounds the rows per INSERT statement.
func NewBetRepository(db *gorm.DB, statementSize int) BetRepository {
	if statementSize <= 0 {
		statementSize = defaultStatementSize
	}
	return &betRepository{db: db, statementSize: statementSize}
}

// UpsertBatch writes all records in one transaction. Existing rows with the same
// (account, channel, trandate) are fully replaced except created_at. Nothing is
// persisted unless every statement succeeds.
func (r *betRepository) UpsertBatch(ctx context.Context, records []models.Bet) (err error) {
	if len(records) == 0 {
		return nil
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return syncerr.Classify(destinationStore, "begin transaction", tx.Error)
	}

	committed := false
	defer func() {
		if rec := recover(); rec != nil {
			tx.Rollback()
			err = fmt.Errorf("upsert panicked: %v", rec)
			return
		}
		if !committed {
			tx.Rollback()
		}
	}()

	err = tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "account"},
			{Name: "channel"},
			{Name: "trandate"},
		},
		DoUpdates: clause.AssignmentColumns(models.BetUpsertColumns),
	}).CreateInBatches(&records, r.statementSize).Error
	if err != nil {
		return syncerr.Classify(destinationStore, "upsert", err)
	}

	if err = tx.Commit().Error; err != nil {
		return syncerr.Classify(destinationStore, "commit", err)
	}
	committed = true
	return nil
}

// GetByKey retrieves a rollup row by its natural key
func (r *betRepository) GetByKey(ctx context.Context, key models.BetKey) (*models.Bet, error) {
	trandate, err := time.Parse(models.TrandateLayout, key.Trandate)
	if err != nil {
		return nil, fmt.Errorf("invalid trandate %q: %w", key.Trandate, err)
	}
	return models.FindBetByKey(r.db.WithContext(ctx), key.Account, key.Channel, trandate)
}

// CountForRange counts rollup rows with trandate in [from, to)
func (r *betRepository) CountForRange(ctx context.Context, from, to time.Time) (int64, error) {
	return models.CountBetsForRange(r.db.WithContext(ctx), from, to)
}

// Ping checks that the destination connection is usable
func (r *betRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.db, destinationStore)
}
