package domain_test

import (
	"errors"
	"math"
	"testing"

	"airbnb_insights/internal/domain"
)

func TestNewFilterSpec_RejectsBadRanges(t *testing.T) {
	for _, tc := range []struct{ lo, hi float64 }{
		{500, 100},
		{math.NaN(), 10},
		{0, math.NaN()},
	} {
		if _, err := domain.NewFilterSpec(nil, nil, nil, tc.lo, tc.hi); !errors.Is(err, domain.ErrInvalidRange) {
			t.Fatalf("%v..%v: expected ErrInvalidRange, got %v", tc.lo, tc.hi, err)
		}
	}
}

func TestFilterSpec_CopiesSelections(t *testing.T) {
	countries := []string{"US"}
	spec, err := domain.NewFilterSpec(countries, nil, nil, 0, 10)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	countries[0] = "FR"
	if !spec.Matches(domain.ListingRecord{Country: "US", Price: 5}) {
		t.Fatalf("spec changed after caller mutated its slice")
	}
	if spec.Matches(domain.ListingRecord{Country: "FR", Price: 5}) {
		t.Fatalf("spec picked up caller mutation")
	}
}

func TestFilterSpec_KeyIgnoresSelectionOrder(t *testing.T) {
	a, _ := domain.NewFilterSpec([]string{"US", "FR"}, nil, nil, 0, 10)
	b, _ := domain.NewFilterSpec([]string{"FR", "US", "US"}, nil, nil, 0, 10)
	if a.Key() != b.Key() {
		t.Fatalf("keys differ: %s vs %s", a.Key(), b.Key())
	}
	c, _ := domain.NewFilterSpec([]string{"FR"}, nil, nil, 0, 10)
	if a.Key() == c.Key() {
		t.Fatalf("different selections share a key")
	}
}

func TestListingRecord_Validate(t *testing.T) {
	if err := (domain.ListingRecord{Price: 10, Availability365: 365}).Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	var inv domain.ErrInvalidRecord
	if err := (domain.ListingRecord{Price: -1}).Validate(); !errors.As(err, &inv) || inv.Field != "price" {
		t.Fatalf("expected price rejection, got %v", err)
	}
	if err := (domain.ListingRecord{Availability365: 366}).Validate(); !errors.As(err, &inv) || inv.Field != "availability_365" {
		t.Fatalf("expected availability rejection, got %v", err)
	}
}
