// Package query filters and aggregates an in-memory listings table.
// Every function here is pure: inputs are never mutated and no state is kept
// between calls, so callers may share one table across goroutines.
package query

import "airbnb_insights/internal/domain"

// Filter returns the records matching spec, in input order.
func Filter(records []domain.ListingRecord, spec domain.FilterSpec) ([]domain.ListingRecord, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	out := make([]domain.ListingRecord, 0, len(records))
	for _, r := range records {
		if spec.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}
