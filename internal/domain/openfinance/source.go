package openfinance

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ledgersync/internal/domain/ledger"
	ofclient "ledgersync/internal/infrastructure/openfinance"
)

// DefaultMaxPages bounds a single walk so a provider bug can't loop forever.
const DefaultMaxPages = 500

var errTooManyPages = errors.New("pagination did not terminate")

// PageFetcher is the part of the provider client the walk needs.
type PageFetcher interface {
	SyncPage(ctx context.Context, accessToken, cursor string) (*ofclient.SyncPageResponse, error)
}

// Source walks the provider's incremental sync protocol.
type Source struct {
	client   PageFetcher
	maxPages int
}

// NewSource creates a Source. maxPages <= 0 uses DefaultMaxPages.
func NewSource(client PageFetcher, maxPages int) *Source {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Source{client: client, maxPages: maxPages}
}

// SyncAll pages from cursor until the provider reports no more pages and returns
// everything as one batch. It never writes, so a failed walk can simply be discarded
// and started again from the committed cursor.
func (s *Source) SyncAll(ctx context.Context, accessToken, cursor string) (*ledger.Batch, error) {
	ctx, span := syncTracer.Start(ctx, "ledger.walk", trace.WithAttributes(
		attribute.Bool("cursor.initial", cursor == ""),
	))
	defer span.End()

	batch := &ledger.Batch{}
	next := cursor

	pages := 0
	for hasMore := true; hasMore; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pages == s.maxPages {
			err := fmt.Errorf("%w after %d pages", errTooManyPages, pages)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		pages++

		page, err := s.client.SyncPage(ctx, accessToken, next)
		if err != nil {
			err = fmt.Errorf("page %d: %w", pages, classifyProviderError(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		if err := appendPage(batch, page); err != nil {
			err = fmt.Errorf("page %d: %w", pages, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		next = page.NextCursor
		hasMore = page.HasMore
	}

	batch.NextCursor = next
	span.SetAttributes(
		attribute.Int("pages", pages),
		attribute.Int("batch.added", len(batch.Added)),
		attribute.Int("batch.modified", len(batch.Modified)),
		attribute.Int("batch.removed", len(batch.Removed)),
	)
	return batch, nil
}

func appendPage(batch *ledger.Batch, page *ofclient.SyncPageResponse) error {
	if page.NextCursor == "" {
		return fmt.Errorf("%w: empty next_cursor", ErrInvalidPayload)
	}

	for i := range page.Added {
		e, err := page.Added[i].ToEntry()
		if err != nil {
			return err
		}
		batch.Added = append(batch.Added, e)
	}
	for i := range page.Modified {
		e, err := page.Modified[i].ToEntry()
		if err != nil {
			return err
		}
		batch.Modified = append(batch.Modified, e)
	}
	for i := range page.Removed {
		if err := page.Removed[i].Validate(); err != nil {
			return err
		}
		batch.Removed = append(batch.Removed, page.Removed[i].TransactionID)
	}
	return nil
}
