package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/ledger"
	"ledgersync/internal/domain/openfinance"
)

// LedgerAppliedChannel is the NOTIFY channel raised when a ledger apply commits.
const LedgerAppliedChannel = "ledger_applied"

// LedgerStore implements openfinance.LedgerStore on PostgreSQL.
type LedgerStore struct {
	db *DB
}

var _ openfinance.LedgerStore = (*LedgerStore)(nil)

func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// InTx runs fn in one database transaction.
func (s *LedgerStore) InTx(ctx context.Context, fn func(tx openfinance.LedgerTx) error) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(&ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) LockConnection(ctx context.Context, connectionID string) (*connection.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1 FOR UPDATE`

	c, err := scanConnection(t.tx.QueryRowContext(ctx, query, connectionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock connection: %w", err)
	}
	return c, nil
}

// UpsertAccounts writes the provider's accounts. The conflict update is restricted to rows
// of the same connection, so an account claimed by another connection is left untouched.
func (t *ledgerTx) UpsertAccounts(ctx context.Context, connectionID string, params []account.UpsertParams) error {
	query := `
		INSERT INTO accounts (id, connection_id, external_id, name, mask, current_balance, available_balance, currency, type, subtype)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (external_id) DO UPDATE
			SET name = EXCLUDED.name,
			    mask = EXCLUDED.mask,
			    current_balance = EXCLUDED.current_balance,
			    available_balance = EXCLUDED.available_balance,
			    currency = EXCLUDED.currency,
			    type = EXCLUDED.type,
			    subtype = EXCLUDED.subtype,
			    updated_at = NOW()
			WHERE accounts.connection_id = EXCLUDED.connection_id
	`

	for _, p := range params {
		var available decimal.NullDecimal
		if p.AvailableBalance != nil {
			available = decimal.NewNullDecimal(*p.AvailableBalance)
		}
		_, err := t.tx.ExecContext(ctx, query,
			uuid.NewString(), connectionID, p.ExternalID, p.Name, p.Mask, p.CurrentBalance,
			available, p.Currency, p.Type, p.Subtype,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert account %s: %w", p.ExternalID, err)
		}
	}
	return nil
}

func (t *ledgerTx) ResolveAccounts(ctx context.Context, connectionID string, externalIDs []string) (map[string]string, error) {
	resolved := make(map[string]string, len(externalIDs))
	if len(externalIDs) == 0 {
		return resolved, nil
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT external_id, id FROM accounts WHERE connection_id = $1 AND external_id = ANY($2)`,
		connectionID, pq.Array(externalIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ext, id string
		if err := rows.Scan(&ext, &id); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		resolved[ext] = id
	}
	return resolved, rows.Err()
}

// UpsertEntry writes e keyed by external_id. The conflict update is restricted to rows
// of the same connection, so an external ID claimed elsewhere comes back with no row.
func (t *ledgerTx) UpsertEntry(ctx context.Context, connectionID, accountID string, e ledger.Entry) (bool, error) {
	query := `
		INSERT INTO ledger_entries (id, connection_id, account_id, external_id, category, amount, currency, date, pending, name, merchant_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (external_id) DO UPDATE
			SET account_id = EXCLUDED.account_id,
			    category = EXCLUDED.category,
			    amount = EXCLUDED.amount,
			    currency = EXCLUDED.currency,
			    date = EXCLUDED.date,
			    pending = EXCLUDED.pending,
			    name = EXCLUDED.name,
			    merchant_name = EXCLUDED.merchant_name,
			    updated_at = NOW()
			WHERE ledger_entries.connection_id = EXCLUDED.connection_id
		RETURNING id
	`

	var id string
	err := t.tx.QueryRowContext(ctx, query,
		uuid.NewString(), connectionID, accountID, e.ExternalID, e.Category,
		e.Amount, e.Currency, e.Date, e.Pending, e.Name, nullStringPtr(e.MerchantName),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert ledger entry: %w", err)
	}
	return true, nil
}

func (t *ledgerTx) DeleteEntry(ctx context.Context, connectionID, externalID string) (bool, error) {
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM ledger_entries WHERE connection_id = $1 AND external_id = $2`,
		connectionID, externalID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

func (t *ledgerTx) AdvanceCursor(ctx context.Context, connectionID, cursor string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE connections
		SET cursor = $2, last_synced_at = $3, last_error = NULL, status = 'active', updated_at = NOW()
		WHERE id = $1`,
		connectionID, cursor, at,
	)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}

// NotifyApplied queues a NOTIFY that Postgres delivers only if the transaction commits.
func (t *ledgerTx) NotifyApplied(ctx context.Context, ownerID int64) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, LedgerAppliedChannel, strconv.FormatInt(ownerID, 10))
	if err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
