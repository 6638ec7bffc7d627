package account

import "context"

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer.
// Writes happen only inside a ledger apply.
type Repository interface {
	// ListByConnectionID retrieves all accounts of one connection
	ListByConnectionID(ctx context.Context, connectionID string) ([]*Account, error)

	// ListActiveByOwnerID retrieves accounts reachable through the owner's active connections
	ListActiveByOwnerID(ctx context.Context, ownerID int64) ([]*Account, error)
}
