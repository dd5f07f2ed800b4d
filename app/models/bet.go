package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TrandateLayout is the calendar date layout used for trandate values.
const TrandateLayout = "2006-01-02"

// Bet is one row of the daily rollup table. (account, channel, trandate) is unique.
type Bet struct {
	ID       uint64          `gorm:"primaryKey" json:"id"`
	Account  string          `gorm:"type:varchar(191);not null;uniqueIndex:uq_bets_acc_chan_trandate,priority:1" json:"account"`
	Channel  string          `gorm:"type:varchar(32);not null;uniqueIndex:uq_bets_acc_chan_trandate,priority:2" json:"channel"`
	Trandate time.Time       `gorm:"type:date;not null;uniqueIndex:uq_bets_acc_chan_trandate,priority:3;index" json:"trandate"`
	Master   string          `gorm:"type:varchar(16);not null;index" json:"master"`
	Min      decimal.Decimal `gorm:"column:min;type:decimal(14,2);not null;default:0" json:"min"`
	Max      decimal.Decimal `gorm:"column:max;type:decimal(14,2);not null;default:0" json:"max"`
	Count    int64           `gorm:"column:count;not null;default:0;check:chk_bets_count,count >= 0" json:"count"`
	Turnover decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0;check:chk_bets_turnover,turnover >= 0" json:"turnover"`
	Winlose  decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"winlose"`
	// LP is winlose / turnover as a fraction, not a percentage.
	LP        decimal.Decimal `gorm:"column:lp;type:decimal(12,6);not null;default:0" json:"lp"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Bet model
func (Bet) TableName() string {
	return "bets"
}

// BetKey is the natural key of a rollup row.
type BetKey struct {
	Account  string
	Channel  string
	Trandate string
}

// Key returns the natural key of the row.
func (b *Bet) Key() BetKey {
	return BetKey{
		Account:  b.Account,
		Channel:  b.Channel,
		Trandate: b.Trandate.Format(TrandateLayout),
	}
}

// BetUpsertColumns are the columns replaced when a row with the same natural key already exists.
// created_at is deliberately absent.
var BetUpsertColumns = []string{
	"master",
	"min",
	"max",
	"count",
	"turnover",
	"winlose",
	"lp",
	"updated_at",
}

// FindBetByKey loads one rollup row by its natural key.
func FindBetByKey(db *gorm.DB, account, channel string, trandate time.Time) (*Bet, error) {
	var bet Bet
	err := db.Where("account = ? AND channel = ? AND trandate = ?", account, channel, trandate).First(&bet).Error
	if err != nil {
		return nil, err
	}
	return &bet, nil
}

// CountBetsForRange counts rollup rows with trandate in [from, to).
func CountBetsForRange(db *gorm.DB, from, to time.Time) (int64, error) {
	var count int64
	err := db.Model(&Bet{}).Where("trandate >= ? AND trandate < ?", from, to).Count(&count).Error
	return count, err
}
