package connection

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service contains the business logic for connection lifecycle operations
type Service struct {
	repo      Repository
	exchanges ExchangeRepository
	provider  TokenExchanger
	vault     Encrypter
	ttl       time.Duration
	now       func() time.Time
}

// NewService creates a new connection service
func NewService(repo Repository, exchanges ExchangeRepository, provider TokenExchanger, vault Encrypter, ttl time.Duration) *Service {
	return &Service{
		repo:      repo,
		exchanges: exchanges,
		provider:  provider,
		vault:     vault,
		ttl:       ttl,
		now:       time.Now,
	}
}

// BeginExchange trades the public token with the provider and parks the encrypted
// credential in a pending exchange owned by the caller.
func (s *Service) BeginExchange(ctx context.Context, params BeginParams) (*PendingExchange, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	cred, err := s.provider.ExchangePublicToken(ctx, params.PublicToken)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange public token: %w", err)
	}

	blob, err := s.vault.Encrypt(cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	now := s.now().UTC()
	pending := &PendingExchange{
		ID:              uuid.New().String(),
		OwnerID:         params.OwnerID,
		ExternalID:      cred.ExternalID,
		InstitutionID:   params.InstitutionID,
		InstitutionName: params.InstitutionName,
		SecretBlob:      blob,
		ExpiresAt:       now.Add(s.ttl),
		CreatedAt:       now,
	}

	if err := s.exchanges.Create(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to store pending exchange: %w", err)
	}

	log.Printf("User %d: pending exchange %s created for institution %s", params.OwnerID, pending.ID, params.InstitutionID)
	return pending, nil
}

// CompleteExchange claims the pending exchange and creates the connection.
func (s *Service) CompleteExchange(ctx context.Context, ownerID int64, exchangeID string) (*Connection, error) {
	if exchangeID == "" {
		return nil, ErrExchangeNotFound
	}

	conn, err := s.exchanges.Claim(ctx, ownerID, exchangeID, uuid.New().String(), s.now().UTC())
	if err != nil {
		return nil, err
	}

	log.Printf("User %d: connection %s created from exchange %s", ownerID, conn.ID, exchangeID)
	return conn, nil
}

// List returns the caller's connections
func (s *Service) List(ctx context.Context, ownerID int64) ([]*Connection, error) {
	return s.repo.ListByOwnerID(ctx, ownerID)
}

// Get returns a connection after verifying ownership
func (s *Service) Get(ctx context.Context, ownerID int64, id string) (*Connection, error) {
	conn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if conn.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return conn, nil
}

// Disconnect deletes a connection; its accounts and ledger entries cascade.
func (s *Service) Disconnect(ctx context.Context, ownerID int64, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	log.Printf("User %d: connection %s disconnected", ownerID, id)
	return nil
}

// PurgeExpired removes pending exchanges that were never completed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.exchanges.PurgeExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("Purged %d expired pending exchanges", n)
	}
	return n, nil
}
