package domain

import (
	"fmt"
	"math"
	"sort"
)

// FilterSpec selects listings by category membership and an inclusive price range.
// Build it with NewFilterSpec; it is never mutated afterwards. The zero value
// matches every record.
type FilterSpec struct {
	countries     categorySet
	propertyTypes categorySet
	roomTypes     categorySet
	priceMin      float64
	priceMax      float64
	bounded       bool
}

type categorySet map[string]struct{}

func newCategorySet(vals []string) categorySet {
	if len(vals) == 0 {
		return nil
	}
	s := make(categorySet, len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

// allows reports membership; an empty set allows everything.
func (s categorySet) allows(v string) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[v]
	return ok
}

func (s categorySet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// NewFilterSpec copies the category selections. Empty selections impose no
// constraint. priceMin > priceMax or a NaN bound yields ErrInvalidRange.
func NewFilterSpec(countries, propertyTypes, roomTypes []string, priceMin, priceMax float64) (FilterSpec, error) {
	if err := checkRange(priceMin, priceMax); err != nil {
		return FilterSpec{}, err
	}
	return FilterSpec{
		countries:     newCategorySet(countries),
		propertyTypes: newCategorySet(propertyTypes),
		roomTypes:     newCategorySet(roomTypes),
		priceMin:      priceMin,
		priceMax:      priceMax,
		bounded:       true,
	}, nil
}

// MatchAll is the identity filter.
func MatchAll() FilterSpec {
	return FilterSpec{priceMin: 0, priceMax: math.Inf(1), bounded: true}
}

func checkRange(lo, hi float64) error {
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return fmt.Errorf("%w: price bounds must be numbers", ErrInvalidRange)
	}
	if lo > hi {
		return fmt.Errorf("%w: price_min %g > price_max %g", ErrInvalidRange, lo, hi)
	}
	return nil
}

// Validate re-checks the price range.
func (f FilterSpec) Validate() error {
	if !f.bounded {
		return nil
	}
	return checkRange(f.priceMin, f.priceMax)
}

// Matches applies all four predicates.
func (f FilterSpec) Matches(r ListingRecord) bool {
	if !f.countries.allows(r.Country) ||
		!f.propertyTypes.allows(r.PropertyType) ||
		!f.roomTypes.allows(r.RoomType) {
		return false
	}
	if f.bounded && (r.Price < f.priceMin || r.Price > f.priceMax) {
		return false
	}
	return true
}

func (f FilterSpec) Countries() []string     { return f.countries.sorted() }
func (f FilterSpec) PropertyTypes() []string { return f.propertyTypes.sorted() }
func (f FilterSpec) RoomTypes() []string     { return f.roomTypes.sorted() }

// PriceRange returns the inclusive bounds; an unbounded spec reports [0, +Inf].
func (f FilterSpec) PriceRange() (float64, float64) {
	if !f.bounded {
		return 0, math.Inf(1)
	}
	return f.priceMin, f.priceMax
}

// Key is a canonical encoding, stable across selection order, used for cache keys.
func (f FilterSpec) Key() string {
	lo, hi := f.PriceRange()
	return fmt.Sprintf("c=%q|p=%q|r=%q|lo=%g|hi=%g", f.Countries(), f.PropertyTypes(), f.RoomTypes(), lo, hi)
}
