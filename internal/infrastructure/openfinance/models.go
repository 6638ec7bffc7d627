package openfinance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"ledgersync/internal/domain/account"
	"ledgersync/internal/domain/ledger"
)

const (
	dateLayout      = "2006-01-02"
	defaultCurrency = "USD"
	uncategorized   = "uncategorized"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SyncPageRequest is the body of one incremental sync call.
type SyncPageRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
	Cursor      string `json:"cursor,omitempty"`
	Count       int    `json:"count,omitempty"`
}

// SyncPageResponse is one page of the incremental sync protocol.
type SyncPageResponse struct {
	Added      []Transaction `json:"added"`
	Modified   []Transaction `json:"modified"`
	Removed    []Removed     `json:"removed"`
	NextCursor string        `json:"next_cursor"`
	HasMore    bool          `json:"has_more"`
	RequestID  string        `json:"request_id"`
}

// Transaction is a provider transaction as it appears on the wire.
type Transaction struct {
	TransactionID           string           `json:"transaction_id" validate:"required"`
	AccountID               string           `json:"account_id" validate:"required"`
	Amount                  json.Number      `json:"amount" validate:"required"`
	IsoCurrencyCode         *string          `json:"iso_currency_code" validate:"omitempty,len=3"`
	UnofficialCurrencyCode  *string          `json:"unofficial_currency_code"`
	Date                    string           `json:"date" validate:"required,datetime=2006-01-02"`
	Pending                 bool             `json:"pending"`
	Name                    string           `json:"name"`
	MerchantName            *string          `json:"merchant_name"`
	Category                []string         `json:"category"`
	PersonalFinanceCategory *FinanceCategory `json:"personal_finance_category" validate:"omitempty"`
}

// FinanceCategory is the provider's two-level category.
type FinanceCategory struct {
	Primary  string `json:"primary" validate:"required"`
	Detailed string `json:"detailed"`
}

// Removed identifies a transaction the provider deleted.
type Removed struct {
	TransactionID string `json:"transaction_id" validate:"required"`
}

// ToEntry validates the wire transaction and converts it to a ledger entry.
func (t *Transaction) ToEntry() (ledger.Entry, error) {
	if err := validate.Struct(t); err != nil {
		return ledger.Entry{}, fmt.Errorf("%w: transaction %q: %v", ErrInvalidPayload, t.TransactionID, err)
	}

	amount, err := decimal.NewFromString(t.Amount.String())
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("%w: transaction %q amount %q", ErrInvalidPayload, t.TransactionID, t.Amount)
	}

	date, err := time.Parse(dateLayout, t.Date)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("%w: transaction %q date %q", ErrInvalidPayload, t.TransactionID, t.Date)
	}

	return ledger.Entry{
		ExternalID:        t.TransactionID,
		ExternalAccountID: t.AccountID,
		Category:          t.category(),
		Amount:            amount,
		Currency:          t.currency(),
		Date:              date,
		Pending:           t.Pending,
		Name:              t.Name,
		MerchantName:      t.MerchantName,
	}, nil
}

func (t *Transaction) category() string {
	if t.PersonalFinanceCategory != nil {
		if t.PersonalFinanceCategory.Detailed != "" {
			return t.PersonalFinanceCategory.Detailed
		}
		return t.PersonalFinanceCategory.Primary
	}
	if len(t.Category) > 0 {
		return strings.Join(t.Category, " > ")
	}
	return uncategorized
}

func (t *Transaction) currency() string {
	if t.IsoCurrencyCode != nil && *t.IsoCurrencyCode != "" {
		return strings.ToUpper(*t.IsoCurrencyCode)
	}
	if t.UnofficialCurrencyCode != nil && *t.UnofficialCurrencyCode != "" {
		return strings.ToUpper(*t.UnofficialCurrencyCode)
	}
	return defaultCurrency
}

// Validate checks a removed marker.
func (r *Removed) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: removed entry: %v", ErrInvalidPayload, err)
	}
	return nil
}

// AccountsRequest is the body of an accounts lookup.
type AccountsRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	AccessToken string `json:"access_token"`
}

// AccountResponse represents the API response for account data
type AccountResponse struct {
	Accounts  []Account `json:"accounts"`
	Item      Item      `json:"item"`
	RequestID string    `json:"request_id"`
}

// Item identifies the provider-side connection the accounts belong to.
type Item struct {
	ItemID        string `json:"item_id"`
	InstitutionID string `json:"institution_id"`
}

// Account represents an account from the provider
type Account struct {
	AccountID    string   `json:"account_id" validate:"required"`
	Name         string   `json:"name" validate:"required"`
	OfficialName *string  `json:"official_name"`
	Mask         *string  `json:"mask"`
	Type         string   `json:"type"`
	Subtype      *string  `json:"subtype"`
	Balances     Balances `json:"balances"`
}

// Balances holds the provider balance figures. Either may be null.
type Balances struct {
	Current         decimal.NullDecimal `json:"current"`
	Available       decimal.NullDecimal `json:"available"`
	IsoCurrencyCode *string             `json:"iso_currency_code" validate:"omitempty,len=3"`
}

// ToUpsertParams validates the account and converts it to domain upsert parameters.
func (a *Account) ToUpsertParams() (account.UpsertParams, error) {
	if err := validate.Struct(a); err != nil {
		return account.UpsertParams{}, fmt.Errorf("%w: account %q: %v", ErrInvalidPayload, a.AccountID, err)
	}

	p := account.UpsertParams{
		ExternalID:     a.AccountID,
		Name:           a.Name,
		CurrentBalance: a.Balances.Current.Decimal,
		Currency:       defaultCurrency,
		Type:           account.ParseType(a.Type),
	}
	if a.Mask != nil {
		p.Mask = *a.Mask
	}
	if a.Subtype != nil {
		p.Subtype = *a.Subtype
	}
	if a.Balances.Available.Valid {
		avail := a.Balances.Available.Decimal
		p.AvailableBalance = &avail
	}
	if a.Balances.IsoCurrencyCode != nil && *a.Balances.IsoCurrencyCode != "" {
		p.Currency = strings.ToUpper(*a.Balances.IsoCurrencyCode)
	}
	return p, nil
}

// ExchangeRequest trades a public token for an access token.
type ExchangeRequest struct {
	ClientID    string `json:"client_id"`
	Secret      string `json:"secret"`
	PublicToken string `json:"public_token"`
}

// ExchangeResponse is the provider's answer to a public token exchange.
type ExchangeResponse struct {
	AccessToken string `json:"access_token" validate:"required"`
	ItemID      string `json:"item_id" validate:"required"`
	RequestID   string `json:"request_id"`
}
