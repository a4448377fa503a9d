// Package mapper turns loosely shaped rows (CSV records, JSON exports, Mongo
// documents) into domain.ListingRecord.
package mapper

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"airbnb_insights/internal/domain"
)

/********** alias registry (single source of truth) **********/

// Paths are dotted for nested documents. Flat headers are normalized with
// NormalizeHeader before lookup, so "Property_type" and "Property Type" both hit
// "property_type".
var listingAliases = map[domain.Column][]string{
	domain.ColCountry:         {"address.country", "country", "country_name", "location.country"},
	domain.ColPropertyType:    {"property_type", "propertytype", "type"},
	domain.ColRoomType:        {"room_type", "roomtype"},
	domain.ColPrice:           {"price", "price_per_night", "nightly_price"},
	domain.ColAvailability365: {"availability.availability_365", "availability_365", "availability365"},
	domain.ColHostName:        {"host.host_name", "host_name", "hostname", "host"},
	domain.ColName:            {"name", "title", "listing_name"},
}

var ErrMissingPrice = errors.New("price is missing or not a number")

/********** tiny helpers **********/

// NormalizeHeader lower-cases a header and folds spaces and dashes to underscores.
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return strings.TrimPrefix(h, "\ufeff")
}

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// firstString returns the first alias that resolves to a string (or a scalar
// rendered as one). Missing means "".
func firstString(m map[string]any, paths []string) string {
	for _, p := range paths {
		switch v := lookupAny(m, p).(type) {
		case string:
			return strings.TrimSpace(v)
		case fmt.Stringer:
			return strings.TrimSpace(v.String())
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}

// getFloatFlexible: number from several paths (float64/int/string like "8,0",
// "$1,250" or "$1,250.00"/Decimal128 via String()).
func getFloatFlexible(m map[string]any, paths []string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case float32:
			f := float64(v)
			return &f
		case int:
			f := float64(v)
			return &f
		case int32:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		case string:
			if f, ok := parseNumber(v); ok {
				return &f
			}
		case fmt.Stringer:
			if f, ok := parseNumber(v.String()); ok {
				return &f
			}
		}
	}
	return nil
}

var (
	// "1,250" and "12,500.00": comma followed by groups of three digits.
	thousandsSep = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)
	// "8,5" and "8,50": one or two digits after the comma.
	decimalComma = regexp.MustCompile(`^-?\d+,\d{1,2}$`)
)

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return 0, false
	}
	switch {
	case thousandsSep.MatchString(s):
		s = strings.ReplaceAll(s, ",", "")
	case decimalComma.MatchString(s):
		s = strings.Replace(s, ",", ".", 1)
	case strings.Contains(s, ","):
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

/********** listing mapper **********/

// Listing maps one row. Price must be present; availability defaults to 0
// when absent and is truncated toward zero when fractional.
func Listing(m map[string]any) (domain.ListingRecord, error) {
	price := getFloatFlexible(m, listingAliases[domain.ColPrice])
	if price == nil {
		return domain.ListingRecord{}, ErrMissingPrice
	}
	rec := domain.ListingRecord{
		Country:      firstString(m, listingAliases[domain.ColCountry]),
		PropertyType: firstString(m, listingAliases[domain.ColPropertyType]),
		RoomType:     firstString(m, listingAliases[domain.ColRoomType]),
		Price:        *price,
		HostName:     firstString(m, listingAliases[domain.ColHostName]),
		Name:         firstString(m, listingAliases[domain.ColName]),
	}
	if a := getFloatFlexible(m, listingAliases[domain.ColAvailability365]); a != nil {
		rec.Availability365 = int(*a)
	}
	return rec, nil
}

// Row maps a flat header/value pair, as produced by CSV and spreadsheet readers.
func Row(header, values []string) (domain.ListingRecord, error) {
	m := make(map[string]any, len(header))
	for i, h := range header {
		if i < len(values) {
			m[NormalizeHeader(h)] = values[i]
		}
	}
	return Listing(m)
}

// Listings maps a batch and returns how many rows were skipped.
func Listings(docs []map[string]any) ([]domain.ListingRecord, int) {
	out := make([]domain.ListingRecord, 0, len(docs))
	skipped := 0
	for _, d := range docs {
		r, err := Listing(d)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, r)
	}
	return out, skipped
}
