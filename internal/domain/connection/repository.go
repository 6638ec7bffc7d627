package connection

import (
	"context"
	"time"
)

// Repository defines the interface for connection data access.
// Cursor writes happen only inside the ledger apply transaction, not here.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Connection, error)
	GetCursor(ctx context.Context, id string) (*string, error)
	ListByOwnerID(ctx context.Context, ownerID int64) ([]*Connection, error)
	ListOwnersWithActiveConnections(ctx context.Context) ([]int64, error)
	MarkError(ctx context.Context, id string, message string) error
	Delete(ctx context.Context, id string) error
}

// ExchangeRepository persists pending credential exchanges.
type ExchangeRepository interface {
	Create(ctx context.Context, exchange *PendingExchange) error

	// Claim consumes an unexpired exchange owned by ownerID and creates the connection
	// in the same transaction. It returns ErrExchangeNotFound when nothing was claimed
	// and ErrDuplicateConnection when the external ID is already linked.
	Claim(ctx context.Context, ownerID int64, exchangeID, connectionID string, now time.Time) (*Connection, error)

	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenExchanger trades a short-lived public token for a long-lived access credential.
type TokenExchanger interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangedCredential, error)
}

// Encrypter seals credentials before they are stored.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}
