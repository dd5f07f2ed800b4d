// Package testutil provides in-process database and cache fixtures for tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a file backed SQLite database in the test's temp dir and migrates the given models.
func NewSQLiteDB(t *testing.T, name string, dst ...interface{}) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(dst) > 0 {
		require.NoError(t, db.AutoMigrate(dst...))
	}
	return db
}

// NewSourceDB returns a source database with the bets, channels and v_user tables.
func NewSourceDB(t *testing.T) *gorm.DB {
	return NewSQLiteDB(t, "source.db", &models.SourceUser{}, &models.Channel{}, &models.SourceBet{})
}

// NewDestinationDB returns a destination database with the rollup table.
func NewDestinationDB(t *testing.T) *gorm.DB {
	return NewSQLiteDB(t, "destination.db", &models.Bet{})
}

// SourceFixture seeds source rows with sequential ids.
type SourceFixture struct {
	t      *testing.T
	db     *gorm.DB
	nextID uint64
}

// NewSourceFixture wraps a source database for seeding.
func NewSourceFixture(t *testing.T, db *gorm.DB) *SourceFixture {
	return &SourceFixture{t: t, db: db, nextID: 1}
}

// User creates a bettor.
func (f *SourceFixture) User(id uint64, name string) *SourceFixture {
	require.NoError(f.t, f.db.Create(&models.SourceUser{ID: id, Fullusername: name}).Error)
	return f
}

// Channel creates a channel.
func (f *SourceFixture) Channel(id uint64, name string) *SourceFixture {
	require.NoError(f.t, f.db.Create(&models.Channel{ID: id, ChannelName: name, IsActive: true}).Error)
	return f
}

// Bet creates one wager event.
func (f *SourceFixture) Bet(userID, channelID uint64, amount string, winLose int, payout string, at time.Time) *SourceFixture {
	bet := models.SourceBet{
		ID:        f.nextID,
		CreatedBy: userID,
		ChannelID: channelID,
		BetAmount: decimal.RequireFromString(amount),
		WinLose:   winLose,
		Payout:    decimal.RequireFromString(payout),
		CreatedAt: at,
		UpdatedAt: at,
	}
	f.nextID++
	require.NoError(f.t, f.db.Create(&bet).Error)
	return f
}
