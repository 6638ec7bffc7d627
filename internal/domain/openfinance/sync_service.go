package openfinance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
	"ledgersync/internal/domain/ledger"
	"ledgersync/internal/domain/snapshot"
)

// ConnectionStore is the connection data the sync needs outside the apply transaction.
type ConnectionStore interface {
	GetByID(ctx context.Context, id string) (*connection.Connection, error)
	GetCursor(ctx context.Context, id string) (*string, error)
	ListByOwnerID(ctx context.Context, ownerID int64) ([]*connection.Connection, error)
	MarkError(ctx context.Context, id string, message string) error
}

// Decrypter opens stored credential blobs.
type Decrypter interface {
	Decrypt(blob string) (string, error)
}

// AccountFetcher reads the provider's current account list.
type AccountFetcher interface {
	FetchAccounts(ctx context.Context, accessToken string) ([]account.UpsertParams, error)
}

// Walker produces a full batch from a cursor.
type Walker interface {
	SyncAll(ctx context.Context, accessToken, cursor string) (*ledger.Batch, error)
}

// Applier commits the account list and a batch together.
type Applier interface {
	Apply(ctx context.Context, connectionID string, accounts []account.UpsertParams, batch *ledger.Batch) (*ApplyResult, error)
}

// Recomputer refreshes derived aggregates after a commit.
type Recomputer interface {
	Recompute(ctx context.Context, ownerID int64) (*snapshot.Snapshot, error)
}

// Notifier tells owners about sync outcomes.
type Notifier interface {
	ConnectionNeedsAttention(ctx context.Context, ownerID int64, connectionID, institution string)
	LedgerUpdated(ctx context.Context, ownerID int64, connectionID string, changed int)
}

// SyncDeps wires a SyncService. Notifier may be nil.
type SyncDeps struct {
	Connections ConnectionStore
	Vault       Decrypter
	Provider    AccountFetcher
	Source      Walker
	Reconciler  Applier
	Snapshots   Recomputer
	Notifier    Notifier
}

// RetryPolicy bounds retries of transient and mutation failures.
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used for zero fields of a RetryPolicy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     4,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// SyncResult contains the results of one connection sync
type SyncResult struct {
	ConnectionID string        `json:"connectionId"`
	OwnerID      int64         `json:"-"`
	Added        int           `json:"added"`
	Modified     int           `json:"modified"`
	Removed      int           `json:"removed"`
	Skipped      int           `json:"skipped"`
	Attempts     int           `json:"attempts"`
	Duration     time.Duration `json:"-"`
	DurationMs   int64         `json:"durationMs"`
	Error        string        `json:"error,omitempty"`
}

// SyncService orchestrates decrypt, walk, apply and recompute for connections.
type SyncService struct {
	deps          SyncDeps
	policy        RetryPolicy
	ownerParallel int
	group         singleflight.Group
	now           func() time.Time

	mu      sync.Mutex
	flights map[string]*flight
	seq     uint64
}

// flight is a shared run of one connection. It is cancelled once every caller has left.
type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	callers int
}

// NewSyncService creates a new SyncService. ownerParallel bounds concurrent
// connection syncs inside SyncOwner.
func NewSyncService(deps SyncDeps, policy RetryPolicy, ownerParallel int) *SyncService {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	if ownerParallel < 1 {
		ownerParallel = 1
	}
	return &SyncService{
		deps:          deps,
		policy:        policy,
		ownerParallel: ownerParallel,
		now:           time.Now,
		flights:       make(map[string]*flight),
	}
}

// SyncConnection syncs one connection on behalf of ownerID.
// Concurrent calls for the same connection in this process share one run. A caller whose
// context ends stops waiting; the run itself is cancelled only when no caller is left.
func (s *SyncService) SyncConnection(ctx context.Context, ownerID int64, connectionID string) (*SyncResult, error) {
	conn, err := s.deps.Connections.GetByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.OwnerID != ownerID {
		return nil, connection.ErrForbidden
	}
	if conn.Status == connection.StatusDisconnected {
		return nil, connection.ErrDisconnected
	}

	f := s.join(ctx, connectionID)
	defer s.leave(connectionID, f)

	ch := s.group.DoChan(f.key, func() (any, error) {
		return s.run(f.ctx, conn)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			log.Printf("User %d: joined in-flight sync of connection %s", ownerID, connectionID)
		}
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*SyncResult)
		return &res, nil
	}
}

// join registers a caller on the connection's current flight, starting a new one if needed.
// The flight context keeps the first caller's values but not its cancellation.
func (s *SyncService) join(ctx context.Context, connectionID string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.flights[connectionID]
	if !ok {
		s.seq++
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{key: fmt.Sprintf("%s/%d", connectionID, s.seq), ctx: runCtx, cancel: cancel}
		s.flights[connectionID] = f
	}
	f.callers++
	return f
}

// leave drops a caller. The last one out cancels the run; later callers start a fresh flight.
func (s *SyncService) leave(connectionID string, f *flight) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.callers--
	if f.callers > 0 {
		return
	}
	f.cancel()
	if s.flights[connectionID] == f {
		delete(s.flights, connectionID)
	}
}

// SyncOwner syncs every connection of the owner that is not disconnected.
// One failing connection does not stop the others; failures are reported per result.
func (s *SyncService) SyncOwner(ctx context.Context, ownerID int64) ([]*SyncResult, error) {
	conns, err := s.deps.Connections.ListByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	var targets []*connection.Connection
	for _, c := range conns {
		if c.Status != connection.StatusDisconnected {
			targets = append(targets, c)
		}
	}

	results := make([]*SyncResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.ownerParallel)

	for i, c := range targets {
		g.Go(func() error {
			res, err := s.SyncConnection(gctx, ownerID, c.ID)
			if err != nil {
				if errors.Is(err, context.Canceled) && ctx.Err() != nil {
					return err
				}
				res = &SyncResult{ConnectionID: c.ID, OwnerID: ownerID, Error: err.Error()}
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	log.Printf("User %d: synced %d connections, %d failed", ownerID, len(results), failed)
	return results, nil
}

func (s *SyncService) run(ctx context.Context, conn *connection.Connection) (*SyncResult, error) {
	ctx, span := syncTracer.Start(ctx, "sync.connection", trace.WithAttributes(
		attribute.String("connection.id", conn.ID),
		attribute.Int64("owner.id", conn.OwnerID),
	))
	defer span.End()

	start := s.now()
	result := &SyncResult{ConnectionID: conn.ID, OwnerID: conn.OwnerID}

	err := s.sync(ctx, conn, result)

	result.Duration = s.now().Sub(start)
	result.DurationMs = result.Duration.Milliseconds()
	label := outcome(err)
	syncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", label)))
	syncDuration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(attribute.String("outcome", label)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("User %d: sync of connection %s failed (%s) after %d attempts: %v",
			conn.OwnerID, conn.ID, label, result.Attempts, err)
		return nil, err
	}

	log.Printf("User %d: sync of connection %s complete - Added: %d, Modified: %d, Removed: %d, Skipped: %d",
		conn.OwnerID, conn.ID, result.Added, result.Modified, result.Removed, result.Skipped)
	return result, nil
}

func (s *SyncService) sync(ctx context.Context, conn *connection.Connection, result *SyncResult) error {
	secret, err := s.deps.Vault.Decrypt(conn.SecretBlob)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCredential, err)
		s.fail(ctx, conn, err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.policy.InitialInterval
	b.MaxInterval = s.policy.MaxInterval

	applied, err := backoff.Retry(ctx, func() (*ApplyResult, error) {
		result.Attempts++
		syncAttempts.Add(ctx, 1)

		res, err := s.attempt(ctx, conn, secret)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		log.Printf("User %d: connection %s attempt %d failed, retrying from committed cursor: %v",
			conn.OwnerID, conn.ID, result.Attempts, err)
		return nil, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(s.policy.MaxAttempts))

	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		// A cancelled sync made no durable change and is not the connection's fault.
		if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			s.fail(ctx, conn, err)
		}
		return err
	}

	result.Added = applied.Added
	result.Modified = applied.Modified
	result.Removed = applied.Removed
	result.Skipped = applied.Skipped

	if _, err := s.deps.Snapshots.Recompute(ctx, conn.OwnerID); err != nil {
		log.Printf("User %d: snapshot recompute failed after sync of %s: %v", conn.OwnerID, conn.ID, err)
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.LedgerUpdated(ctx, conn.OwnerID, conn.ID, applied.Changed())
	}
	return nil
}

// attempt fetches accounts, walks and applies starting from the committed cursor.
// Nothing is written before the apply transaction.
func (s *SyncService) attempt(ctx context.Context, conn *connection.Connection, secret string) (*ApplyResult, error) {
	accounts, err := s.deps.Provider.FetchAccounts(ctx, secret)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", classifyProviderError(err))
	}

	// Always re-read: a retry must never resume from a cursor seen mid-walk.
	cursor, err := s.deps.Connections.GetCursor(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	from := ""
	if cursor != nil {
		from = *cursor
	}

	batch, err := s.deps.Source.SyncAll(ctx, secret, from)
	if err != nil {
		return nil, err
	}

	return s.deps.Reconciler.Apply(ctx, conn.ID, accounts, batch)
}

// fail records a terminal failure on the connection and tells the owner.
func (s *SyncService) fail(ctx context.Context, conn *connection.Connection, cause error) {
	// The request context may be about to expire; the bookkeeping must still land.
	ctx = context.WithoutCancel(ctx)

	if err := s.deps.Connections.MarkError(ctx, conn.ID, cause.Error()); err != nil {
		log.Printf("User %d: failed to mark connection %s as error: %v", conn.OwnerID, conn.ID, err)
	}
	if s.deps.Notifier != nil {
		s.deps.Notifier.ConnectionNeedsAttention(ctx, conn.OwnerID, conn.ID, conn.InstitutionName)
	}
}
