// Package filesource loads listings from CSV or XLSX files, optionally
// compressed, addressed by a path or a doublestar glob.
package filesource

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"

	"airbnb_insights/internal/domain"
)

type Source struct {
	pattern string
}

func New(pattern string) *Source { return &Source{pattern: pattern} }

func (s *Source) Name() string { return "file" }

// LoadListings reads every matching file in lexical order.
func (s *Source) LoadListings(ctx context.Context) ([]domain.ListingRecord, error) {
	if s.pattern == "" {
		return nil, fmt.Errorf("file source: path is empty")
	}
	paths, err := doublestar.FilepathGlob(s.pattern)
	if err != nil {
		return nil, fmt.Errorf("file source: bad pattern %q: %w", s.pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("file source: no files match %q", s.pattern)
	}
	sort.Strings(paths)

	var all []domain.ListingRecord
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return all, nil
}

// LoadFile decodes a single file; the format comes from its extension once
// any compression suffix is removed.
func LoadFile(path string) ([]domain.ListingRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, comp, err := decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var (
		recs    []domain.ListingRecord
		skipped int
	)
	switch ext := baseFormat(path); ext {
	case ".xlsx":
		recs, skipped, err = decodeXLSX(data)
	case ".csv", ".txt", "":
		recs, skipped, err = DecodeCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	ev := log.Info()
	if skipped > 0 {
		ev = log.Warn()
	}
	ev.Str("path", path).
		Str("compression", comp.String()).
		Int("rows", len(recs)).
		Int("skipped", skipped).
		Msg("file loaded")
	return recs, nil
}
