package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AggregatedBetRow is one (bettor, channel, day) group produced by the source aggregation query.
type AggregatedBetRow struct {
	BettorID     uint64          `gorm:"column:created_by"`
	Fullusername string          `gorm:"column:fullusername"`
	ChannelID    uint64          `gorm:"column:channel_id"`
	ChannelName  string          `gorm:"column:channel_name"`
	BetDate      BetDate         `gorm:"column:bet_date"`
	TotalBets    int64           `gorm:"column:total_bets"`
	MinBet       decimal.Decimal `gorm:"column:min_bet"`
	MaxBet       decimal.Decimal `gorm:"column:max_bet"`
	Turnover     decimal.Decimal `gorm:"column:turnover"`
	WinLose      decimal.Decimal `gorm:"column:total_win_lose_amount"`
}

// BetDate is the calendar day of a group. MySQL returns DATE() as time.Time (parseTime=true)
// while other drivers return text, so it scans both.
type BetDate struct {
	time.Time
}

// NewBetDate truncates t to its calendar day in UTC.
func NewBetDate(t time.Time) BetDate {
	y, m, d := t.Date()
	return BetDate{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Scan implements sql.Scanner
func (d *BetDate) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		d.Time = time.Time{}
		return nil
	case time.Time:
		*d = NewBetDate(v)
		return nil
	case []byte:
		return d.parse(string(v))
	case string:
		return d.parse(v)
	default:
		return fmt.Errorf("unsupported bet_date type %T", value)
	}
}

func (d *BetDate) parse(s string) error {
	if len(s) < len(TrandateLayout) {
		return fmt.Errorf("invalid bet_date %q", s)
	}
	t, err := time.Parse(TrandateLayout, s[:len(TrandateLayout)])
	if err != nil {
		return fmt.Errorf("invalid bet_date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// Value implements driver.Valuer
func (d BetDate) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Format(TrandateLayout), nil
}

// String returns the date as YYYY-MM-DD
func (d BetDate) String() string {
	return d.Format(TrandateLayout)
}

// SyncRequest selects the source events to aggregate. StartDate and EndDate are calendar days,
// both included; Window turns them into a half-open time range.
type SyncRequest struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Channel   string    `json:"channel,omitempty"`
}

// NewSyncRequest builds a request for the calendar days [start, end] in UTC.
func NewSyncRequest(start, end time.Time, channel string) SyncRequest {
	return SyncRequest{
		StartDate: NewBetDate(start).Time,
		EndDate:   NewBetDate(end).Time,
		Channel:   channel,
	}
}

// Window returns [start of StartDate, start of the day after EndDate).
func (r SyncRequest) Window() (time.Time, time.Time) {
	return NewBetDate(r.StartDate).Time, NewBetDate(r.EndDate).AddDate(0, 0, 1)
}

// Days returns the number of calendar days covered by the request.
func (r SyncRequest) Days() int {
	from, to := r.Window()
	return int(to.Sub(from).Hours() / 24)
}

// Validate checks that the range is not inverted.
func (r SyncRequest) Validate() error {
	if r.StartDate.IsZero() || r.EndDate.IsZero() {
		return fmt.Errorf("start and end date are required")
	}
	if NewBetDate(r.EndDate).Before(NewBetDate(r.StartDate).Time) {
		return fmt.Errorf("end date %s is before start date %s",
			r.EndDate.Format(TrandateLayout), r.StartDate.Format(TrandateLayout))
	}
	return nil
}

func (r SyncRequest) String() string {
	channel := r.Channel
	if channel == "" {
		channel = "all"
	}
	return fmt.Sprintf("%s..%s channel=%s",
		r.StartDate.Format(TrandateLayout), r.EndDate.Format(TrandateLayout), channel)
}

// Cursor is the position of the last group returned by a page of the aggregation query.
type Cursor struct {
	BettorID  uint64
	ChannelID uint64
	BetDate   string
}

// CursorOf returns the keyset position of a row.
func CursorOf(row AggregatedBetRow) *Cursor {
	return &Cursor{
		BettorID:  row.BettorID,
		ChannelID: row.ChannelID,
		BetDate:   row.BetDate.String(),
	}
}
