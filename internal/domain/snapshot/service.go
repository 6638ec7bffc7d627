package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultListLimit = 12
	maxListLimit     = 120
)

// Service recomputes and serves net-worth snapshots.
type Service struct {
	repo     Repository
	accounts AccountLister
	now      func() time.Time
}

// NewService creates a new snapshot service
func NewService(repo Repository, accounts AccountLister) *Service {
	return &Service{repo: repo, accounts: accounts, now: time.Now}
}

// Recompute classifies the owner's current accounts and upserts the current period.
// It is idempotent and safe to run any number of times.
func (s *Service) Recompute(ctx context.Context, ownerID int64) (*Snapshot, error) {
	if ownerID <= 0 {
		return nil, errors.New("valid owner ID is required")
	}

	totals, err := s.totals(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.Upsert(ctx, &Snapshot{
		OwnerID:      ownerID,
		Period:       PeriodFor(s.now()),
		Assets:       totals.Assets,
		Liabilities:  totals.Liabilities,
		NetWorth:     totals.NetWorth,
		AccountCount: totals.AccountCount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return saved, nil
}

// Current returns the current period's snapshot. When none has been written yet the
// totals are computed on the fly and returned with Synthetic set; nothing is persisted.
func (s *Service) Current(ctx context.Context, ownerID int64) (*Snapshot, error) {
	period := PeriodFor(s.now())

	snap, err := s.repo.GetByPeriod(ctx, ownerID, period)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrSnapshotNotFound) {
		return nil, err
	}

	totals, err := s.totals(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		OwnerID:      ownerID,
		Period:       period,
		Assets:       totals.Assets,
		Liabilities:  totals.Liabilities,
		NetWorth:     totals.NetWorth,
		AccountCount: totals.AccountCount,
		Synthetic:    true,
	}, nil
}

// List returns the most recent snapshots, newest first.
func (s *Service) List(ctx context.Context, ownerID int64, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByOwnerID(ctx, ownerID, limit)
}

func (s *Service) totals(ctx context.Context, ownerID int64) (Totals, error) {
	accounts, err := s.accounts.ListActiveByOwnerID(ctx, ownerID)
	if err != nil {
		return Totals{}, fmt.Errorf("failed to list accounts: %w", err)
	}
	return Classify(accounts), nil
}
