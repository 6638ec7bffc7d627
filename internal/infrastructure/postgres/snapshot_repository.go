package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledgersync/internal/domain/snapshot"
)

const snapshotColumns = `id, owner_id, period, assets, liabilities, net_worth, account_count, synthetic, created_at, updated_at`

// SnapshotRepository implements snapshot.Repository
type SnapshotRepository struct {
	db *DB
}

var _ snapshot.Repository = (*SnapshotRepository)(nil)

func NewSnapshotRepository(db *DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func scanSnapshot(row rowScanner) (*snapshot.Snapshot, error) {
	var s snapshot.Snapshot
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.Period, &s.Assets, &s.Liabilities, &s.NetWorth,
		&s.AccountCount, &s.Synthetic, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Period = s.Period.UTC()
	return &s, nil
}

// Upsert overwrites the (owner, period) row in place, keeping its id and created_at.
func (r *SnapshotRepository) Upsert(ctx context.Context, s *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	query := `
		INSERT INTO snapshots (id, owner_id, period, assets, liabilities, net_worth, account_count, synthetic)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
		ON CONFLICT (owner_id, period) DO UPDATE
			SET assets = EXCLUDED.assets,
			    liabilities = EXCLUDED.liabilities,
			    net_worth = EXCLUDED.net_worth,
			    account_count = EXCLUDED.account_count,
			    updated_at = NOW()
		RETURNING ` + snapshotColumns

	saved, err := scanSnapshot(r.db.QueryRowContext(ctx, query,
		uuid.NewString(), s.OwnerID, s.Period, s.Assets, s.Liabilities, s.NetWorth, s.AccountCount,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return saved, nil
}

func (r *SnapshotRepository) GetByPeriod(ctx context.Context, ownerID int64, period time.Time) (*snapshot.Snapshot, error) {
	s, err := scanSnapshot(r.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE owner_id = $1 AND period = $2`,
		ownerID, period,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, snapshot.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return s, nil
}

// ListByOwnerID returns the newest periods first.
func (r *SnapshotRepository) ListByOwnerID(ctx context.Context, ownerID int64, limit int) ([]*snapshot.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE owner_id = $1 ORDER BY period DESC LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*snapshot.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
