package snapshot

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is the net-worth aggregate of one owner for one monthly period.
// Only the current period's row is ever rewritten.
type Snapshot struct {
	ID           string          `json:"id"`
	OwnerID      int64           `json:"-"`
	Period       time.Time       `json:"period"`
	Assets       decimal.Decimal `json:"assets"`
	Liabilities  decimal.Decimal `json:"liabilities"`
	NetWorth     decimal.Decimal `json:"netWorth"`
	AccountCount int             `json:"accountCount"`
	// Synthetic marks a snapshot computed on read that was never persisted.
	Synthetic bool      `json:"synthetic"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Totals is the result of classifying a set of accounts.
type Totals struct {
	Assets       decimal.Decimal
	Liabilities  decimal.Decimal
	NetWorth     decimal.Decimal
	AccountCount int
}

// PeriodFor returns the first day of t's month in UTC.
func PeriodFor(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
