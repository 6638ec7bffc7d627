package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"ledgersync/internal/domain/account"
)

const accountColumns = `a.id, a.connection_id, a.external_id, a.name, a.mask, a.current_balance,
	a.available_balance, a.currency, a.type, a.subtype, a.created_at, a.updated_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db *DB
}

var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var acc account.Account
	var available decimal.NullDecimal

	err := row.Scan(
		&acc.ID, &acc.ConnectionID, &acc.ExternalID, &acc.Name, &acc.Mask, &acc.CurrentBalance,
		&available, &acc.Currency, &acc.Type, &acc.Subtype, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if available.Valid {
		acc.AvailableBalance = &available.Decimal
	}
	return &acc, nil
}

// ListByConnectionID retrieves all accounts of one connection
func (r *AccountRepository) ListByConnectionID(ctx context.Context, connectionID string) ([]*account.Account, error) {
	return r.list(ctx, `
		SELECT `+accountColumns+`
		FROM accounts a
		WHERE a.connection_id = $1
		ORDER BY a.name`, connectionID)
}

// ListActiveByOwnerID retrieves accounts whose connection is active
func (r *AccountRepository) ListActiveByOwnerID(ctx context.Context, ownerID int64) ([]*account.Account, error) {
	return r.list(ctx, `
		SELECT `+accountColumns+`
		FROM accounts a
		JOIN connections c ON c.id = a.connection_id
		WHERE c.owner_id = $1 AND c.status = 'active'
		ORDER BY a.name`, ownerID)
}

func (r *AccountRepository) list(ctx context.Context, query string, arg any) ([]*account.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}
