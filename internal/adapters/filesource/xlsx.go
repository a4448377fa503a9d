package filesource

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"airbnb_insights/internal/domain"
)

// decodeXLSX reads the first sheet of a workbook.
func decodeXLSX(data []byte) ([]domain.ListingRecord, int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("xlsx: open: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, fmt.Errorf("xlsx: no sheets found")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, 0, fmt.Errorf("xlsx: read %s: %w", sheets[0], err)
	}
	out, skipped := decodeRows(rows)
	return out, skipped, nil
}
