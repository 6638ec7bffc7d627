package account

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the coarse account classification used for aggregate math.
type Type string

const (
	TypeDepository Type = "depository"
	TypeCredit     Type = "credit"
	TypeLoan       Type = "loan"
	TypeInvestment Type = "investment"
	TypeOther      Type = "other"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidCurrency = errors.New("valid ISO 4217 currency is required")
)

// Account is an external account owned by exactly one connection.
// Accounts are only ever written by sync; users never create them.
type Account struct {
	ID               string           `json:"id"`
	ConnectionID     string           `json:"connectionId"`
	ExternalID       string           `json:"externalId"`
	Name             string           `json:"name"`
	Mask             string           `json:"mask,omitempty"`
	CurrentBalance   decimal.Decimal  `json:"currentBalance"`
	AvailableBalance *decimal.Decimal `json:"availableBalance,omitempty"`
	Currency         string           `json:"currency"`
	Type             Type             `json:"type"`
	Subtype          string           `json:"subtype,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// UpsertParams describes an account as reported by the provider.
type UpsertParams struct {
	ExternalID       string
	Name             string
	Mask             string
	CurrentBalance   decimal.Decimal
	AvailableBalance *decimal.Decimal
	Currency         string
	Type             Type
	Subtype          string
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.ExternalID == "" {
		return errors.New("account external ID is required")
	}
	if p.Name == "" {
		return errors.New("account name is required")
	}
	if len(p.Currency) != 3 || strings.ToUpper(p.Currency) != p.Currency {
		return ErrInvalidCurrency
	}
	return nil
}

// ParseType maps a provider type string onto a coarse type.
// Unknown values fall back to TypeOther.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeDepository:
		return TypeDepository
	case TypeCredit:
		return TypeCredit
	case TypeLoan:
		return TypeLoan
	case TypeInvestment, "brokerage":
		return TypeInvestment
	default:
		return TypeOther
	}
}
