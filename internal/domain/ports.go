package domain

import "context"

// ListingSource supplies a fully materialized table.
type ListingSource interface {
	LoadListings(ctx context.Context) ([]ListingRecord, error)
	Name() string
}

// ListingRepository persists imported rows. Rows are keyed by (source, row)
// so re-running an import overwrites in place; Prune then drops rows that the
// latest run of a source no longer produced.
type ListingRepository interface {
	UpsertListings(ctx context.Context, runID string, rs []SourcedListing) error
	PruneListings(ctx context.Context, source, keepRunID string) (int64, error)
	LogReject(ctx context.Context, runID string, row int, reason string) error
}

type SourcedListing struct {
	Source string
	Row    int
	ListingRecord
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Read models

type PageQuery struct {
	Limit  int
	Offset int
}

type ListingsPage struct {
	Items   []ListingRecord `json:"items"`
	Total   int             `json:"total"`
	Version string          `json:"version"`
}

type AggregationResult struct {
	Request string       `json:"request"`
	Groups  []GroupValue `json:"groups"`
	Version string       `json:"version"`
}
