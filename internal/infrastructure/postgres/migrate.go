package postgres

import (
	"context"
	"fmt"
	"log"
)

// migrationLockID is the advisory lock key serializing schema bootstrap across instances.
const migrationLockID int64 = 0x6c656467657273

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		is_admin      BOOLEAN NOT NULL DEFAULT false,
		password_hash TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS connections (
		id               UUID PRIMARY KEY,
		owner_id         BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		secret_blob      TEXT NOT NULL,
		external_id      TEXT NOT NULL UNIQUE,
		institution_id   TEXT NOT NULL,
		institution_name TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'error', 'disconnected')),
		cursor           TEXT,
		last_synced_at   TIMESTAMPTZ,
		last_error       TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_owner ON connections (owner_id)`,
	`CREATE TABLE IF NOT EXISTS pending_exchanges (
		id               UUID PRIMARY KEY,
		owner_id         BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		external_id      TEXT NOT NULL,
		institution_id   TEXT NOT NULL,
		institution_name TEXT NOT NULL DEFAULT '',
		secret_blob      TEXT NOT NULL,
		expires_at       TIMESTAMPTZ NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_exchanges_expires ON pending_exchanges (expires_at)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id                UUID PRIMARY KEY,
		connection_id     UUID NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
		external_id       TEXT NOT NULL UNIQUE,
		name              TEXT NOT NULL,
		mask              TEXT NOT NULL DEFAULT '',
		current_balance   NUMERIC(19,4) NOT NULL DEFAULT 0,
		available_balance NUMERIC(19,4),
		currency          CHAR(3) NOT NULL,
		type              TEXT NOT NULL,
		subtype           TEXT NOT NULL DEFAULT '',
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_connection ON accounts (connection_id)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id            UUID PRIMARY KEY,
		connection_id UUID NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
		account_id    UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		external_id   TEXT NOT NULL UNIQUE,
		category      TEXT NOT NULL,
		amount        NUMERIC(19,4) NOT NULL,
		currency      CHAR(3) NOT NULL,
		date          DATE NOT NULL,
		pending       BOOLEAN NOT NULL DEFAULT false,
		name          TEXT NOT NULL DEFAULT '',
		merchant_name TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_date ON ledger_entries (account_id, date DESC)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id            UUID PRIMARY KEY,
		owner_id      BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		period        DATE NOT NULL,
		assets        NUMERIC(19,4) NOT NULL,
		liabilities   NUMERIC(19,4) NOT NULL,
		net_worth     NUMERIC(19,4) NOT NULL,
		account_count INTEGER NOT NULL,
		synthetic     BOOLEAN NOT NULL DEFAULT false,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (owner_id, period)
	)`,
	`CREATE TABLE IF NOT EXISTS device_tokens (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token       TEXT NOT NULL UNIQUE,
		device_type TEXT NOT NULL,
		is_active   BOOLEAN NOT NULL DEFAULT true,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_used   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id    BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title      TEXT NOT NULL,
		message    TEXT NOT NULL,
		category   TEXT NOT NULL,
		data       JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications (user_id, created_at DESC)`,
}

// Migrate creates any missing tables and indexes. Instances starting at the same time
// serialize on an advisory lock, and every statement is idempotent.
func Migrate(ctx context.Context, db *DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	// Advisory locks are per session, so lock and unlock must use the same connection.
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockID); err != nil {
			log.Printf("Migrate: failed to release advisory lock: %v", err)
		}
	}()

	for i, stmt := range schema {
		ctx, span := startSpan(ctx, "db.Migrate", stmt)
		_, err := conn.ExecContext(ctx, stmt)
		endSpan(span, err)
		if err != nil {
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}

	log.Printf("Migrate: schema up to date (%d statements)", len(schema))
	return nil
}
