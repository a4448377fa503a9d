package query_test

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"airbnb_insights/internal/domain"
	"airbnb_insights/internal/query"
)

func threeRows() []domain.ListingRecord {
	return []domain.ListingRecord{
		{Country: "US", Price: 100},
		{Country: "US", Price: 200},
		{Country: "FR", Price: 50},
	}
}

func TestAggregate_MeanPriceByCountry(t *testing.T) {
	got, err := query.Aggregate(threeRows(), domain.AggregationRequest{
		GroupBy: domain.ColCountry,
		Op:      domain.MeanOf(domain.ColPrice),
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(got) != 2 || got[0].Key != "US" || got[0].Value != 150 || got[1].Key != "FR" || got[1].Value != 50 {
		t.Fatalf("unexpected groups: %+v", got)
	}
	if got[0].Count != 2 || got[1].Count != 1 {
		t.Fatalf("unexpected group sizes: %+v", got)
	}
}

func TestAggregate_TopN(t *testing.T) {
	got, err := query.Aggregate(threeRows(), domain.AggregationRequest{
		GroupBy: domain.ColCountry,
		Op:      domain.MeanOf(domain.ColPrice),
		TopN:    1,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(got) != 1 || got[0].Key != "US" || got[0].Value != 150 {
		t.Fatalf("unexpected groups: %+v", got)
	}
}

func TestAggregate_AscendingOrder(t *testing.T) {
	got, err := query.Aggregate(threeRows(), domain.AggregationRequest{
		GroupBy: domain.ColCountry,
		Op:      domain.MeanOf(domain.ColPrice),
		Order:   domain.Ascending,
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got[0].Key != "FR" || got[1].Key != "US" {
		t.Fatalf("expected ascending order, got %+v", got)
	}
}

func TestAggregate_CountPartitionsTable(t *testing.T) {
	in := randomTable(1000, 3)
	for _, by := range domain.CategoricalColumns {
		got, err := query.Aggregate(in, domain.AggregationRequest{GroupBy: by, Op: domain.Count()})
		if err != nil {
			t.Fatalf("%s: %v", by, err)
		}
		total := 0.0
		seen := map[string]bool{}
		for _, g := range got {
			if seen[g.Key] {
				t.Fatalf("%s: duplicate group %q", by, g.Key)
			}
			seen[g.Key] = true
			total += g.Value
		}
		if int(total) != len(in) {
			t.Fatalf("%s: group counts sum to %v, want %d", by, total, len(in))
		}
	}
}

func TestAggregate_TiesKeepFirstSeenOrder(t *testing.T) {
	in := []domain.ListingRecord{
		{RoomType: "Shared room"}, {RoomType: "Private room"}, {RoomType: "Entire home/apt"},
		{RoomType: "Private room"}, {RoomType: "Shared room"}, {RoomType: "Entire home/apt"},
	}
	got, err := query.Aggregate(in, domain.AggregationRequest{GroupBy: domain.ColRoomType, Op: domain.Count()})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	want := []string{"Shared room", "Private room", "Entire home/apt"}
	for i, k := range want {
		if got[i].Key != k {
			t.Fatalf("position %d: want %q, got %+v", i, k, got)
		}
	}
}

func TestAggregate_MeanInvariantUnderReordering(t *testing.T) {
	in := randomTable(3000, 11)
	req := domain.AggregationRequest{GroupBy: domain.ColCountry, Op: domain.MeanOf(domain.ColPrice)}
	base, err := query.Aggregate(in, req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	want := map[string]float64{}
	for _, g := range base {
		want[g.Key] = g.Value
	}

	rng := rand.New(rand.NewSource(99))
	for round := 0; round < 5; round++ {
		shuffled := append([]domain.ListingRecord(nil), in...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, err := query.Aggregate(shuffled, req)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		for _, g := range got {
			if want[g.Key] != g.Value {
				t.Fatalf("round %d: mean for %q changed: %v vs %v", round, g.Key, g.Value, want[g.Key])
			}
		}
	}
}

func TestAggregate_UnknownColumns(t *testing.T) {
	cases := []domain.AggregationRequest{
		{GroupBy: "colour", Op: domain.Count()},
		{GroupBy: domain.ColPrice, Op: domain.Count()},
		{GroupBy: domain.ColCountry, Op: domain.MeanOf(domain.ColHostName)},
		{GroupBy: domain.ColCountry, Op: domain.MeanOf("rating")},
	}
	for _, req := range cases {
		if _, err := query.Aggregate(threeRows(), req); !errors.Is(err, domain.ErrUnknownColumn) {
			t.Fatalf("%+v: expected ErrUnknownColumn, got %v", req, err)
		}
	}
}

func TestAggregate_EmptyInput(t *testing.T) {
	got, err := query.Aggregate(nil, domain.AggregationRequest{GroupBy: domain.ColCountry, Op: domain.Count()})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
}

func TestAggregate_ConcurrentCallsAgree(t *testing.T) {
	in := randomTable(2000, 5)
	req := domain.AggregationRequest{GroupBy: domain.ColHostName, Op: domain.MeanOf(domain.ColAvailability365), TopN: 3}
	want, err := query.Aggregate(in, req)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := query.Aggregate(in, req)
			if err != nil || len(got) != len(want) {
				errs <- "mismatched result"
				return
			}
			for j := range got {
				if got[j] != want[j] {
					errs <- "mismatched group"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}
}
