package scheduler

import (
	"context"
	"fmt"

	"github.com/umputun/spacefeed/pkg/domain"
)

//go:generate moq -out mocks/fetcher.go -pkg mocks -skip-ensure -fmt goimports . Fetcher
//go:generate moq -out mocks/decoder.go -pkg mocks -skip-ensure -fmt goimports . Decoder
//go:generate moq -out mocks/writer.go -pkg mocks -skip-ensure -fmt goimports . Writer

// Fetcher returns raw payload of a feed, with retries of transient failures done inside
type Fetcher interface {
	FetchFeed(ctx context.Context, feed domain.FeedID) ([]byte, error)
}

// Decoder converts a payload into records, rejecting a malformed payload as a whole
type Decoder interface {
	Decode(feed domain.FeedID, payload []byte) ([]domain.Record, error)
}

// Writer upserts records by natural key, all or nothing
type Writer interface {
	UpsertBatch(ctx context.Context, records []domain.Record) error
}

// FeedIngestor is the fetch-and-store operation: fetch payload, decode it completely, then write
// all records in one batch. A payload failing to decode writes nothing.
type FeedIngestor struct {
	fetcher Fetcher
	decoder Decoder
	writer  Writer
}

// NewIngestor makes FeedIngestor
func NewIngestor(fetcher Fetcher, decoder Decoder, writer Writer) *FeedIngestor {
	return &FeedIngestor{fetcher: fetcher, decoder: decoder, writer: writer}
}

// Ingest runs fetch-and-store for the feed and returns number of upserted records
func (i *FeedIngestor) Ingest(ctx context.Context, feed domain.FeedID) (int, error) {
	payload, err := i.fetcher.FetchFeed(ctx, feed)
	if err != nil {
		return 0, fmt.Errorf("fetch: %w", err)
	}

	records, err := i.decoder.Decode(feed, payload)
	if err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := i.writer.UpsertBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("store %d records: %w", len(records), err)
	}
	return len(records), nil
}
