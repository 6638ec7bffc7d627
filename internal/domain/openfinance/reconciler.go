package openfinance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/ledger"
)

var errEmptyCursor = errors.New("batch has no next cursor")

// LedgerTx is the write surface available inside one apply transaction.
type LedgerTx interface {
	// LockConnection reads the connection row and holds a row lock until the transaction ends.
	LockConnection(ctx context.Context, connectionID string) (*connection.Connection, error)

	// UpsertAccounts creates or refreshes the connection's accounts and balances.
	// An external ID that already belongs to another connection is left alone.
	UpsertAccounts(ctx context.Context, connectionID string, params []account.UpsertParams) error

	// ResolveAccounts maps external account IDs of this connection to local account IDs.
	// Unknown IDs are absent from the result.
	ResolveAccounts(ctx context.Context, connectionID string, externalIDs []string) (map[string]string, error)

	// UpsertEntry inserts or refreshes an entry keyed by its external ID. It reports false
	// when the external ID already belongs to an account outside this connection.
	UpsertEntry(ctx context.Context, connectionID, accountID string, e ledger.Entry) (bool, error)

	// DeleteEntry removes an entry of this connection. Removing an unknown ID is not an error.
	DeleteEntry(ctx context.Context, connectionID, externalID string) (bool, error)

	// AdvanceCursor stores the new cursor, clears the last error and stamps the sync time.
	AdvanceCursor(ctx context.Context, connectionID, cursor string, at time.Time) error

	// NotifyApplied queues a post-commit signal that the owner's ledger changed.
	NotifyApplied(ctx context.Context, ownerID int64) error
}

// LedgerStore runs fn inside a single transaction. fn returning an error rolls back everything.
type LedgerStore interface {
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// ApplyResult contains the outcome of one committed apply
type ApplyResult struct {
	Added     int
	Modified  int
	Removed   int
	Skipped   int
	NewCursor string
}

// Changed is the number of rows the apply touched.
func (r *ApplyResult) Changed() int {
	return r.Added + r.Modified + r.Removed
}

// Reconciler applies a batch and advances the cursor as one atomic unit.
type Reconciler struct {
	store LedgerStore
	now   func() time.Time
}

// NewReconciler creates a new Reconciler
func NewReconciler(store LedgerStore) *Reconciler {
	return &Reconciler{store: store, now: time.Now}
}

// Apply writes the provider's accounts, then added, modified and removed entries, then the
// new cursor, in that order, inside one transaction. On any error nothing is kept: balances,
// entries and the cursor are all unchanged. Entries that reference an unknown account are
// skipped, not failed.
func (r *Reconciler) Apply(ctx context.Context, connectionID string, accounts []account.UpsertParams, batch *ledger.Batch) (*ApplyResult, error) {
	ctx, span := syncTracer.Start(ctx, "ledger.apply", trace.WithAttributes(
		attribute.String("connection.id", connectionID),
		attribute.Int("batch.size", batch.Size()),
	))
	defer span.End()

	var result *ApplyResult
	err := r.store.InTx(ctx, func(tx LedgerTx) error {
		res, err := r.apply(ctx, tx, connectionID, accounts, batch)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		err = fmt.Errorf("%w: connection %s: %w", ErrReconciliation, connectionID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	entriesApplied.Add(ctx, int64(result.Added), metric.WithAttributes(attribute.String("kind", "added")))
	entriesApplied.Add(ctx, int64(result.Modified), metric.WithAttributes(attribute.String("kind", "modified")))
	entriesApplied.Add(ctx, int64(result.Removed), metric.WithAttributes(attribute.String("kind", "removed")))
	span.SetAttributes(attribute.Int("skipped", result.Skipped))
	return result, nil
}

func (r *Reconciler) apply(ctx context.Context, tx LedgerTx, connectionID string, params []account.UpsertParams, batch *ledger.Batch) (*ApplyResult, error) {
	if batch.NextCursor == "" {
		return nil, errEmptyCursor
	}

	conn, err := tx.LockConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("lock connection: %w", err)
	}
	if conn.Status == connection.StatusDisconnected {
		return nil, connection.ErrDisconnected
	}

	if valid := account.Sanitize(connectionID, params); len(valid) > 0 {
		if err := tx.UpsertAccounts(ctx, connectionID, valid); err != nil {
			return nil, fmt.Errorf("upsert accounts: %w", err)
		}
	}

	accounts, err := tx.ResolveAccounts(ctx, connectionID, referencedAccounts(batch))
	if err != nil {
		return nil, fmt.Errorf("resolve accounts: %w", err)
	}

	res := &ApplyResult{NewCursor: batch.NextCursor}

	upsert := func(kind string, entries []ledger.Entry, count *int) error {
		for _, e := range entries {
			accountID, ok := accounts[e.ExternalAccountID]
			if !ok {
				log.Printf("Connection %s: skipping %s entry %s, account %s not found", connectionID, kind, e.ExternalID, e.ExternalAccountID)
				res.Skipped++
				continue
			}
			applied, err := tx.UpsertEntry(ctx, connectionID, accountID, e)
			if err != nil {
				return fmt.Errorf("upsert %s entry %s: %w", kind, e.ExternalID, err)
			}
			if !applied {
				log.Printf("Connection %s: skipping %s entry %s, owned by another connection", connectionID, kind, e.ExternalID)
				res.Skipped++
				continue
			}
			*count++
		}
		return nil
	}

	if err := upsert("added", batch.Added, &res.Added); err != nil {
		return nil, err
	}
	// A modified entry we never saw is an implicit add.
	if err := upsert("modified", batch.Modified, &res.Modified); err != nil {
		return nil, err
	}

	for _, externalID := range batch.Removed {
		deleted, err := tx.DeleteEntry(ctx, connectionID, externalID)
		if err != nil {
			return nil, fmt.Errorf("delete entry %s: %w", externalID, err)
		}
		if deleted {
			res.Removed++
		}
	}

	if err := tx.AdvanceCursor(ctx, connectionID, batch.NextCursor, r.now().UTC()); err != nil {
		return nil, fmt.Errorf("advance cursor: %w", err)
	}
	if err := tx.NotifyApplied(ctx, conn.OwnerID); err != nil {
		return nil, fmt.Errorf("notify applied: %w", err)
	}

	return res, nil
}

func referencedAccounts(batch *ledger.Batch) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, list := range [][]ledger.Entry{batch.Added, batch.Modified} {
		for _, e := range list {
			if _, ok := seen[e.ExternalAccountID]; ok {
				continue
			}
			seen[e.ExternalAccountID] = struct{}{}
			ids = append(ids, e.ExternalAccountID)
		}
	}
	return ids
}
