package account

import (
	"context"
	"errors"
	"log"
)

// Service contains the business logic for account operations
type Service struct {
	repo Repository
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Sanitize returns the provider accounts that may be written for a connection.
// Invalid entries are skipped with a warning rather than failing the whole list.
func Sanitize(connectionID string, params []UpsertParams) []UpsertParams {
	valid := make([]UpsertParams, 0, len(params))
	for _, p := range params {
		if p.Type == "" {
			p.Type = TypeOther
		}
		if err := p.Validate(); err != nil {
			log.Printf("Connection %s: skipping account %q: %v", connectionID, p.ExternalID, err)
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

// ListByConnection retrieves the accounts of a single connection
func (s *Service) ListByConnection(ctx context.Context, connectionID string) ([]*Account, error) {
	return s.repo.ListByConnectionID(ctx, connectionID)
}

// ListForOwner retrieves accounts of every active connection of an owner
func (s *Service) ListForOwner(ctx context.Context, ownerID int64) ([]*Account, error) {
	if ownerID <= 0 {
		return nil, errors.New("valid owner ID is required")
	}
	return s.repo.ListActiveByOwnerID(ctx, ownerID)
}
