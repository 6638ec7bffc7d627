// Package openfinance replicates the provider's transaction ledger into the local store.
package openfinance

import (
	"context"
	"errors"
	"fmt"

	ofclient "ledgersync/internal/infrastructure/openfinance"
)

var (
	// ErrCredential means the stored credential blob could not be decrypted.
	// The connection is marked as needing attention and the sync is not retried.
	ErrCredential = errors.New("credential error")

	// ErrProviderTransient covers network failures and provider 5xx/429.
	// The whole walk is retried from the last committed cursor.
	ErrProviderTransient = errors.New("provider transient error")

	// ErrProviderMutation means the provider's data changed mid-walk.
	// The walk always restarts from the last committed cursor, never a mid-walk one.
	ErrProviderMutation = errors.New("provider data mutated during pagination")

	// ErrProviderUnauthorized is returned when the provider rejects the credential.
	ErrProviderUnauthorized = errors.New("provider key unauthorized")

	// ErrReconciliation wraps any failure inside the atomic apply.
	ErrReconciliation = errors.New("reconciliation failed")

	// ErrInvalidPayload means a provider response failed translation.
	ErrInvalidPayload = ofclient.ErrInvalidPayload
)

// classifyProviderError maps client errors onto the sync taxonomy, keeping the original in the chain.
func classifyProviderError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ofclient.ErrMutationDuringPagination):
		return fmt.Errorf("%w: %w", ErrProviderMutation, err)
	case errors.Is(err, ofclient.ErrUnauthorized):
		return fmt.Errorf("%w: %w", ErrProviderUnauthorized, err)
	case errors.Is(err, ofclient.ErrTransient):
		return fmt.Errorf("%w: %w", ErrProviderTransient, err)
	}
	return err
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrProviderTransient) || errors.Is(err, ErrProviderMutation)
}

// outcome is the metric label for a finished sync.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCredential):
		return "credential"
	case errors.Is(err, ErrProviderUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrProviderMutation):
		return "mutation"
	case errors.Is(err, ErrProviderTransient):
		return "transient"
	case errors.Is(err, ErrReconciliation):
		return "reconciliation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
