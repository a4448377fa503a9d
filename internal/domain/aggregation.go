package domain

import "fmt"

type OpKind string

const (
	OpCount OpKind = "count"
	OpMean  OpKind = "mean"
)

// Operator reduces a group to one value.
type Operator struct {
	Kind   OpKind
	Column Column // numeric column for OpMean
}

func Count() Operator            { return Operator{Kind: OpCount} }
func MeanOf(col Column) Operator { return Operator{Kind: OpMean, Column: col} }

func (o Operator) String() string {
	if o.Kind == OpMean {
		return fmt.Sprintf("mean_of(%s)", o.Column)
	}
	return string(o.Kind)
}

type SortOrder int

const (
	Descending SortOrder = iota
	Ascending
)

// AggregationRequest groups by one categorical column.
// TopN <= 0 keeps every group.
type AggregationRequest struct {
	GroupBy Column
	Op      Operator
	TopN    int
	Order   SortOrder
}

func (r AggregationRequest) Key() string {
	return fmt.Sprintf("g=%s|op=%s|n=%d|o=%d", r.GroupBy, r.Op, r.TopN, r.Order)
}

// GroupValue is one row of an aggregation result.
type GroupValue struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}
