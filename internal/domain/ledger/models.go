// Package ledger holds the provider-independent shape of replicated transactions.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one ledger transaction as delivered by the provider, already validated.
// ExternalID is globally unique and is the idempotency key for every write.
type Entry struct {
	ExternalID        string
	ExternalAccountID string
	Category          string
	Amount            decimal.Decimal
	Currency          string
	Date              time.Time
	Pending           bool
	Name              string
	MerchantName      *string
}

// Batch is the accumulated result of one full pagination walk.
type Batch struct {
	Added      []Entry
	Modified   []Entry
	Removed    []string
	NextCursor string
}

// Size returns the number of changes carried by the batch.
func (b *Batch) Size() int {
	return len(b.Added) + len(b.Modified) + len(b.Removed)
}

// StoredEntry is a persisted ledger row.
type StoredEntry struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	ExternalID   string          `json:"externalId"`
	Category     string          `json:"category"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Date         time.Time       `json:"date"`
	Pending      bool            `json:"pending"`
	Name         string          `json:"name"`
	MerchantName *string         `json:"merchantName,omitempty"`
}
