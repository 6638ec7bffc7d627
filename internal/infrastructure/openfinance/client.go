package openfinance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/connection"
)

const (
	defaultTimeout = 30 * time.Second
	syncPageSize   = 500
	maxBodyBytes   = 16 << 20

	syncPath     = "/transactions/sync"
	accountsPath = "/accounts/get"
	exchangePath = "/item/public_token/exchange"
)

// Config holds the provider client settings.
type Config struct {
	BaseURL   string
	ClientID  string
	Secret    string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

// Client handles communication with the provider API
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
	limiter    *rate.Limiter
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new provider API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		clientID: cfg.ClientID,
		secret:   cfg.Secret,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// SyncPage fetches one page of changes after cursor. An empty cursor starts from the beginning.
func (c *Client) SyncPage(ctx context.Context, accessToken, cursor string) (*SyncPageResponse, error) {
	req := SyncPageRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: accessToken,
		Cursor:      cursor,
		Count:       syncPageSize,
	}

	var page SyncPageResponse
	if err := c.post(ctx, syncPath, accessToken, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAccounts returns the accounts currently visible through the credential.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountResponse, error) {
	req := AccountsRequest{ClientID: c.clientID, Secret: c.secret, AccessToken: accessToken}

	var resp AccountResponse
	if err := c.post(ctx, accountsPath, accessToken, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchAccounts returns the provider accounts as domain upsert parameters.
// Accounts that fail validation are logged and dropped.
func (c *Client) FetchAccounts(ctx context.Context, accessToken string) ([]account.UpsertParams, error) {
	resp, err := c.GetAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	params := make([]account.UpsertParams, 0, len(resp.Accounts))
	for i := range resp.Accounts {
		p, err := resp.Accounts[i].ToUpsertParams()
		if err != nil {
			log.Printf("Open finance: item %s: skipping account: %v", resp.Item.ItemID, err)
			continue
		}
		params = append(params, p)
	}
	return params, nil
}

// ExchangePublicToken trades a link public token for a long-lived access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*connection.ExchangedCredential, error) {
	req := ExchangeRequest{ClientID: c.clientID, Secret: c.secret, PublicToken: publicToken}

	var resp ExchangeResponse
	if err := c.post(ctx, exchangePath, "", req, &resp); err != nil {
		return nil, err
	}
	if err := validate.Struct(&resp); err != nil {
		return nil, fmt.Errorf("%w: exchange response: %v", ErrInvalidPayload, err)
	}

	return &connection.ExchangedCredential{AccessToken: resp.AccessToken, ExternalID: resp.ItemID}, nil
}

func (c *Client) post(ctx context.Context, path, bearer string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: failed to execute request: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrTransient, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp ErrorResponse
		// Non-JSON bodies fall back to status classification.
		_ = json.Unmarshal(body, &errResp)
		return NewAPIError(resp.StatusCode, errResp)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to unmarshal response: %v", ErrInvalidPayload, err)
	}
	return nil
}
