package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledgersync/internal/domain/connection"
)

const connectionColumns = `id, owner_id, secret_blob, external_id, institution_id, institution_name,
	status, cursor, last_synced_at, last_error, created_at, updated_at`

// rowScanner is satisfied by *sql.Row, *sql.Rows and tracedRow.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*connection.Connection, error) {
	var c connection.Connection
	var cursor, lastError sql.NullString
	var lastSynced sql.NullTime

	err := row.Scan(
		&c.ID, &c.OwnerID, &c.SecretBlob, &c.ExternalID, &c.InstitutionID, &c.InstitutionName,
		&c.Status, &cursor, &lastSynced, &lastError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cursor.Valid {
		c.Cursor = &cursor.String
	}
	if lastSynced.Valid {
		c.LastSyncedAt = &lastSynced.Time
	}
	if lastError.Valid {
		c.LastError = &lastError.String
	}
	return &c, nil
}

// ConnectionRepository implements connection.Repository and connection.ExchangeRepository.
type ConnectionRepository struct {
	db *DB
}

var (
	_ connection.Repository         = (*ConnectionRepository)(nil)
	_ connection.ExchangeRepository = (*ConnectionRepository)(nil)
)

func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

func (r *ConnectionRepository) GetByID(ctx context.Context, id string) (*connection.Connection, error) {
	c, err := scanConnection(r.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

// GetCursor returns the last committed cursor, nil before the first successful sync.
func (r *ConnectionRepository) GetCursor(ctx context.Context, id string) (*string, error) {
	var cursor sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT cursor FROM connections WHERE id = $1`, id).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	if !cursor.Valid {
		return nil, nil
	}
	return &cursor.String, nil
}

func (r *ConnectionRepository) ListByOwnerID(ctx context.Context, ownerID int64) ([]*connection.Connection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM connections WHERE owner_id = $1 ORDER BY created_at`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (r *ConnectionRepository) ListOwnersWithActiveConnections(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT owner_id FROM connections WHERE status = 'active' ORDER BY owner_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// MarkError moves a connection to error. A disconnected connection stays disconnected.
func (r *ConnectionRepository) MarkError(ctx context.Context, id string, message string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE connections
		SET status = CASE WHEN status = 'disconnected' THEN status ELSE 'error' END,
		    last_error = $2, updated_at = NOW()
		WHERE id = $1`,
		id, message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark connection error: %w", err)
	}
	return expectRow(result, connection.ErrConnectionNotFound)
}

// Delete removes the connection. Accounts and ledger entries go with it.
func (r *ConnectionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return expectRow(result, connection.ErrConnectionNotFound)
}

func (r *ConnectionRepository) Create(ctx context.Context, e *connection.PendingExchange) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_exchanges (id, owner_id, external_id, institution_id, institution_name, secret_blob, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.OwnerID, e.ExternalID, e.InstitutionID, e.InstitutionName, e.SecretBlob, e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create pending exchange: %w", err)
	}
	return nil
}

// Claim consumes the exchange and creates its connection in one transaction, so a
// second claim of the same exchange finds nothing.
func (r *ConnectionRepository) Claim(ctx context.Context, ownerID int64, exchangeID, connectionID string, now time.Time) (*connection.Connection, error) {
	var created *connection.Connection

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var e connection.PendingExchange
		err := tx.QueryRowContext(ctx, `
			DELETE FROM pending_exchanges
			WHERE id = $1 AND owner_id = $2 AND expires_at > $3
			RETURNING external_id, institution_id, institution_name, secret_blob`,
			exchangeID, ownerID, now,
		).Scan(&e.ExternalID, &e.InstitutionID, &e.InstitutionName, &e.SecretBlob)
		if errors.Is(err, sql.ErrNoRows) {
			return connection.ErrExchangeNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to claim exchange: %w", err)
		}

		c, err := scanConnection(tx.QueryRowContext(ctx, `
			INSERT INTO connections (id, owner_id, secret_blob, external_id, institution_id, institution_name, status)
			VALUES ($1, $2, $3, $4, $5, $6, 'active')
			ON CONFLICT (external_id) DO NOTHING
			RETURNING `+connectionColumns,
			connectionID, ownerID, e.SecretBlob, e.ExternalID, e.InstitutionID, e.InstitutionName,
		))
		if errors.Is(err, sql.ErrNoRows) {
			return connection.ErrDuplicateConnection
		}
		if err != nil {
			return fmt.Errorf("failed to create connection: %w", err)
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *ConnectionRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pending_exchanges WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge exchanges: %w", err)
	}
	return result.RowsAffected()
}

func expectRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
