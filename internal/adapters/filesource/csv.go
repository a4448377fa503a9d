package filesource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"airbnb_insights/internal/domain"
	"airbnb_insights/internal/mapper"
)

// DecodeCSV reads a header row followed by listing rows. Rows that cannot be
// mapped (no usable price) are counted in skipped rather than failing the load.
func DecodeCSV(r io.Reader) (out []domain.ListingRecord, skipped int, err error) {
	reader := csv.NewReader(r)
	// tolerate ragged rows from hand-edited exports
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("csv: read header: %w", err)
	}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, skipped, fmt.Errorf("csv: read row %d: %w", len(out)+skipped+2, err)
		}
		rec, err := mapper.Row(header, row)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, skipped, nil
}

// decodeRows maps in-memory rows whose first entry is the header.
func decodeRows(rows [][]string) ([]domain.ListingRecord, int) {
	if len(rows) == 0 {
		return nil, 0
	}
	header := rows[0]
	out := make([]domain.ListingRecord, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		rec, err := mapper.Row(header, row)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, skipped
}
