package betsync

import (
	"strings"
	"time"

	"github.com/ManuelReschke/BetSync/app/models"
	"github.com/ManuelReschke/BetSync/internal/pkg/syncerr"
	"github.com/shopspring/decimal"
)

// masterPrefixLength is the number of leading characters of an account that form its master code
const masterPrefixLength = 4

// lpScale matches the decimal(12,6) lp column
const lpScale = 6

// Transformer turns one aggregated source row into one rollup record
type Transformer struct {
	Validate bool
}

// MasterOf returns the first four characters of account, or the whole account when shorter
func MasterOf(account string) string {
	runes := []rune(account)
	if len(runes) <= masterPrefixLength {
		return account
	}
	return string(runes[:masterPrefixLength])
}

// LP returns winlose / turnover, or zero when turnover is not positive
func LP(winlose, turnover decimal.Decimal) decimal.Decimal {
	if !turnover.IsPositive() {
		return decimal.Zero
	}
	return winlose.DivRound(turnover, lpScale)
}

// Transform builds the destination record. created_at and updated_at are both set to now.
func (t Transformer) Transform(row models.AggregatedBetRow, now time.Time) (models.Bet, error) {
	account := row.Fullusername
	trandate := row.BetDate.Time

	if t.Validate {
		reject := func(reason string) (models.Bet, error) {
			return models.Bet{}, &syncerr.TransformationError{
				Account:  account,
				Channel:  row.ChannelName,
				Trandate: row.BetDate.String(),
				Reason:   reason,
			}
		}
		switch {
		case strings.TrimSpace(account) == "":
			return reject("empty account")
		case row.ChannelName == "":
			return reject("empty channel")
		case trandate.IsZero():
			return reject("missing bet date")
		case row.Turnover.IsNegative():
			return reject("negative turnover")
		case row.TotalBets < 0:
			return reject("negative count")
		}
	}

	return models.Bet{
		Account:   account,
		Master:    MasterOf(account),
		Channel:   row.ChannelName,
		Trandate:  trandate,
		Min:       row.MinBet,
		Max:       row.MaxBet,
		Count:     row.TotalBets,
		Turnover:  row.Turnover,
		Winlose:   row.WinLose,
		LP:        LP(row.WinLose, row.Turnover),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
