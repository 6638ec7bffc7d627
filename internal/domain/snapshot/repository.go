package snapshot

import (
	"context"
	"time"

	"ledgersync/internal/domain/account"
)

// Repository defines the interface for snapshot data access
type Repository interface {
	// Upsert writes the row for (owner, period), overwriting it if present.
	Upsert(ctx context.Context, s *Snapshot) (*Snapshot, error)
	GetByPeriod(ctx context.Context, ownerID int64, period time.Time) (*Snapshot, error)
	ListByOwnerID(ctx context.Context, ownerID int64, limit int) ([]*Snapshot, error)
}

// AccountLister reads the accounts that feed an owner's aggregate.
type AccountLister interface {
	ListActiveByOwnerID(ctx context.Context, ownerID int64) ([]*account.Account, error)
}
