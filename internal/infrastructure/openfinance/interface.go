package openfinance

import (
	"context"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
)

// ClientInterface defines the methods required from the provider API client
type ClientInterface interface {
	SyncPage(ctx context.Context, accessToken, cursor string) (*SyncPageResponse, error)
	GetAccounts(ctx context.Context, accessToken string) (*AccountResponse, error)
	FetchAccounts(ctx context.Context, accessToken string) ([]account.UpsertParams, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*connection.ExchangedCredential, error)
}
