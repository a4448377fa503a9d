package query

import (
	"fmt"
	"sort"

	"airbnb_insights/internal/domain"
)

type group struct {
	key    string
	values []float64
}

// groupBy partitions records by a categorical column, keeping first-seen order.
// When col is empty no values are collected.
func groupBy(records []domain.ListingRecord, by, col domain.Column) []*group {
	idx := make(map[string]*group)
	var order []*group
	for _, r := range records {
		k, _ := r.Category(by)
		g, ok := idx[k]
		if !ok {
			g = &group{key: k}
			idx[k] = g
			order = append(order, g)
		}
		if col != "" {
			v, _ := r.Number(col)
			g.values = append(g.values, v)
		} else {
			g.values = append(g.values, 0)
		}
	}
	return order
}

// Aggregate groups records by req.GroupBy and reduces each group with req.Op.
// Results are sorted by value (descending unless req.Order is Ascending) with a
// stable sort, then truncated to req.TopN when it is positive.
func Aggregate(records []domain.ListingRecord, req domain.AggregationRequest) ([]domain.GroupValue, error) {
	if !req.GroupBy.IsCategorical() {
		return nil, domain.UnknownColumn(string(req.GroupBy), "categorical")
	}
	var valueCol domain.Column
	switch req.Op.Kind {
	case domain.OpCount:
	case domain.OpMean:
		if !req.Op.Column.IsNumeric() {
			return nil, domain.UnknownColumn(string(req.Op.Column), "numeric")
		}
		valueCol = req.Op.Column
	default:
		return nil, fmt.Errorf("unsupported aggregate %q", req.Op.Kind)
	}

	groups := groupBy(records, req.GroupBy, valueCol)
	out := make([]domain.GroupValue, 0, len(groups))
	for _, g := range groups {
		gv := domain.GroupValue{Key: g.key, Count: len(g.values)}
		if req.Op.Kind == domain.OpCount {
			gv.Value = float64(len(g.values))
		} else {
			gv.Value = mean(g.values)
		}
		out = append(out, gv)
	}

	if req.Order == domain.Ascending {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	}
	if req.TopN > 0 && len(out) > req.TopN {
		out = out[:req.TopN]
	}
	return out, nil
}

// mean sums a sorted copy so the result does not depend on input order.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := sortedCopy(values)
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}

func sortedCopy(values []float64) []float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	return s
}
