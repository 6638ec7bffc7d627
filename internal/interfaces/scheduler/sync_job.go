package scheduler

import (
	"context"
	"fmt"
	"log"

	"ledgersync/internal/domain/openfinance"
)

// Syncer is the part of the sync engine the jobs drive.
type Syncer interface {
	SyncOwner(ctx context.Context, ownerID int64) ([]*openfinance.SyncResult, error)
	SyncConnection(ctx context.Context, ownerID int64, connectionID string) (*openfinance.SyncResult, error)
}

// OwnerSyncJob syncs every connection an owner has.
type OwnerSyncJob struct {
	ownerID int64
	syncer  Syncer
}

func NewOwnerSyncJob(ownerID int64, syncer Syncer) *OwnerSyncJob {
	return &OwnerSyncJob{ownerID: ownerID, syncer: syncer}
}

// Execute returns an error when the owner could not be synced at all, or when
// at least one connection failed. Failed connections were already flagged by the engine.
func (j *OwnerSyncJob) Execute(ctx context.Context) error {
	results, err := j.syncer.SyncOwner(ctx, j.ownerID)
	if err != nil {
		return fmt.Errorf("owner sync failed: %w", err)
	}

	var added, modified, removed, failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
			continue
		}
		added += r.Added
		modified += r.Modified
		removed += r.Removed
	}

	log.Printf("User %d: synced %d connections (added=%d modified=%d removed=%d failed=%d)",
		j.ownerID, len(results), added, modified, removed, failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d connections failed", failed, len(results))
	}
	return nil
}

func (j *OwnerSyncJob) OwnerID() int64 { return j.ownerID }

func (j *OwnerSyncJob) Key() string { return fmt.Sprintf("owner:%d", j.ownerID) }

func (j *OwnerSyncJob) Description() string {
	return fmt.Sprintf("Ledger sync for user %d", j.ownerID)
}

// ConnectionSyncJob syncs a single connection, typically on user request.
type ConnectionSyncJob struct {
	ownerID      int64
	connectionID string
	syncer       Syncer
}

func NewConnectionSyncJob(ownerID int64, connectionID string, syncer Syncer) *ConnectionSyncJob {
	return &ConnectionSyncJob{ownerID: ownerID, connectionID: connectionID, syncer: syncer}
}

func (j *ConnectionSyncJob) Execute(ctx context.Context) error {
	result, err := j.syncer.SyncConnection(ctx, j.ownerID, j.connectionID)
	if err != nil {
		return fmt.Errorf("connection %s: %w", j.connectionID, err)
	}
	log.Printf("Connection %s: synced (added=%d modified=%d removed=%d skipped=%d attempts=%d)",
		j.connectionID, result.Added, result.Modified, result.Removed, result.Skipped, result.Attempts)
	return nil
}

func (j *ConnectionSyncJob) OwnerID() int64 { return j.ownerID }

func (j *ConnectionSyncJob) Key() string { return "connection:" + j.connectionID }

func (j *ConnectionSyncJob) Description() string {
	return fmt.Sprintf("Sync of connection %s", j.connectionID)
}

// OwnerLister lists the owners the scheduler should sync.
type OwnerLister interface {
	ListOwnersWithActiveConnections(ctx context.Context) ([]int64, error)
}

// OwnerSyncJobs builds a job provider that yields one OwnerSyncJob per owner with active connections.
func OwnerSyncJobs(owners OwnerLister, syncer Syncer) func(context.Context) ([]Job, error) {
	return func(ctx context.Context) ([]Job, error) {
		ids, err := owners.ListOwnersWithActiveConnections(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list owners: %w", err)
		}
		jobs := make([]Job, 0, len(ids))
		for _, id := range ids {
			jobs = append(jobs, NewOwnerSyncJob(id, syncer))
		}
		return jobs, nil
	}
}
