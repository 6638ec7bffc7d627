package connection

import (
	"errors"
	"time"
)

// Status is the sync lifecycle state of a connection.
type Status string

const (
	StatusActive       Status = "active"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// Domain errors
var (
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrForbidden           = errors.New("access forbidden")
	ErrDisconnected        = errors.New("connection is disconnected")
	ErrDuplicateConnection = errors.New("connection already exists for this external ID")
	ErrExchangeNotFound    = errors.New("pending exchange not found or expired")
	ErrInvalidInput        = errors.New("invalid input")
)

// Connection is one linked external account grouping and its sync state.
// Cursor only moves forward inside a committed apply.
type Connection struct {
	ID              string     `json:"id"`
	OwnerID         int64      `json:"ownerId"`
	SecretBlob      string     `json:"-"`
	ExternalID      string     `json:"externalId"`
	InstitutionID   string     `json:"institutionId"`
	InstitutionName string     `json:"institutionName"`
	Status          Status     `json:"status"`
	Cursor          *string    `json:"-"`
	LastSyncedAt    *time.Time `json:"lastSyncedAt,omitempty"`
	LastError       *string    `json:"lastError,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// NeedsAttention reports whether the owner has to act on this connection.
func (c *Connection) NeedsAttention() bool {
	return c.Status == StatusError
}

// PendingExchange holds an exchanged credential until the owner confirms the link.
type PendingExchange struct {
	ID              string    `json:"id"`
	OwnerID         int64     `json:"-"`
	ExternalID      string    `json:"externalId"`
	InstitutionID   string    `json:"institutionId"`
	InstitutionName string    `json:"institutionName"`
	SecretBlob      string    `json:"-"`
	ExpiresAt       time.Time `json:"expiresAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

// BeginParams contains the inputs for starting a credential exchange.
type BeginParams struct {
	OwnerID         int64
	PublicToken     string
	InstitutionID   string
	InstitutionName string
}

// Validate validates the begin parameters
func (p BeginParams) Validate() error {
	if p.OwnerID <= 0 {
		return errors.New("valid owner ID is required")
	}
	if p.PublicToken == "" {
		return errors.New("public token is required")
	}
	if p.InstitutionID == "" {
		return errors.New("institution ID is required")
	}
	return nil
}

// ExchangedCredential is what the provider returns for a public token.
type ExchangedCredential struct {
	AccessToken string
	ExternalID  string
}
