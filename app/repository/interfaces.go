package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/BetSync/app/models"
	"gorm.io/gorm"
)

// SourceBetRepository reads and aggregates raw wager events from the source (dk) database
type SourceBetRepository interface {
	FetchAggregatedChunk(ctx context.Context, req models.SyncRequest, after *models.Cursor, limit int) ([]models.AggregatedBetRow, error)
	CountGroups(ctx context.Context, req models.SyncRequest) (int64, error)
	CountEvents(ctx context.Context, req models.SyncRequest) (int64, error)
	Ping(ctx context.Context) error
}

// BetRepository writes the daily rollup rows into the destination database
type BetRepository interface {
	UpsertBatch(ctx context.Context, records []models.Bet) error
	GetByKey(ctx context.Context, key models.BetKey) (*models.Bet, error)
	CountForRange(ctx context.Context, from, to time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	SourceBet SourceBetRepository
	Bet       BetRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(sourceDB, destDB *gorm.DB, statementSize int) *Repositories {
	return &Repositories{
		SourceBet: NewSourceBetRepository(sourceDB),
		Bet:       NewBetRepository(destDB, statementSize),
	}
}
