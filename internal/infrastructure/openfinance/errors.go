package openfinance

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes the provider uses that need special handling.
const (
	CodeMutationDuringPagination = "TRANSACTIONS_SYNC_MUTATION_DURING_PAGINATION"
	CodeItemLoginRequired        = "ITEM_LOGIN_REQUIRED"
	CodeInvalidAccessToken       = "INVALID_ACCESS_TOKEN"
	CodeRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
)

var (
	// ErrMutationDuringPagination means the dataset changed mid-walk; restart from the committed cursor.
	ErrMutationDuringPagination = errors.New("provider data changed during pagination")
	// ErrUnauthorized means the stored credential was rejected and the owner has to reconnect.
	ErrUnauthorized = errors.New("provider rejected credential")
	// ErrTransient covers network failures, throttling and provider 5xx.
	ErrTransient = errors.New("transient provider failure")
	// ErrInvalidPayload means a response did not match the expected shape.
	ErrInvalidPayload = errors.New("invalid provider payload")
)

// ErrorResponse represents an error body returned by the provider
type ErrorResponse struct {
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RequestID    string `json:"request_id"`
}

// APIError is a non-2xx provider response. It unwraps to one of the sentinels above
// when the status or code is recognized.
type APIError struct {
	StatusCode int
	ErrorResponse
	kind error
}

func (e *APIError) Error() string {
	if e.ErrorCode == "" {
		return fmt.Sprintf("API request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (status %d): %s - %s", e.StatusCode, e.ErrorCode, e.ErrorMessage)
}

func (e *APIError) Unwrap() error { return e.kind }

// NewAPIError builds an APIError classified by status and provider code.
func NewAPIError(status int, body ErrorResponse) *APIError {
	return &APIError{StatusCode: status, ErrorResponse: body, kind: classify(status, body.ErrorCode)}
}

func classify(status int, code string) error {
	switch code {
	case CodeMutationDuringPagination:
		return ErrMutationDuringPagination
	case CodeItemLoginRequired, CodeInvalidAccessToken:
		return ErrUnauthorized
	case CodeRateLimitExceeded:
		return ErrTransient
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests, status >= 500:
		return ErrTransient
	}
	return nil
}
