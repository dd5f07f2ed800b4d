package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Outcome flags stored in the source bets.win_lose column, seen from the house.
const (
	OutcomeHouseWins  = 0
	OutcomeHouseLoses = 1
)

// SourceBet is one raw wager event in the upstream (dk) database. Read-only for this service.
type SourceBet struct {
	ID        uint64          `gorm:"primaryKey" json:"id"`
	CreatedBy uint64          `gorm:"index;not null" json:"created_by"`
	ChannelID uint64          `gorm:"index;not null" json:"channel_id"`
	BetAmount decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"bet_amount"`
	WinLose   int             `gorm:"column:win_lose;not null;default:0" json:"win_lose"`
	Payout    decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"payout"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the SourceBet model
func (SourceBet) TableName() string {
	return "bets"
}

// Channel is the channel dimension of the source database.
type Channel struct {
	ID                 uint64    `gorm:"primaryKey" json:"id"`
	ChannelName        string    `gorm:"type:varchar(10);uniqueIndex;not null" json:"channel_name"`
	ChannelDescription string    `gorm:"type:varchar(255)" json:"channel_description"`
	IsActive           bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Channel model
func (Channel) TableName() string {
	return "channels"
}

// SourceUser is the bettor dimension, exposed by the source as the v_user view.
type SourceUser struct {
	ID           uint64 `gorm:"primaryKey" json:"id"`
	Fullusername string `gorm:"column:fullusername;type:varchar(191)" json:"fullusername"`
}

// TableName specifies the table name for the SourceUser model
func (SourceUser) TableName() string {
	return "v_user"
}
