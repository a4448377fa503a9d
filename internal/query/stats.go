package query

import (
	"fmt"
	"math"
	"sort"

	"airbnb_insights/internal/domain"
)

// ColumnSummary mirrors a dataframe describe() row.
type ColumnSummary struct {
	Column domain.Column `json:"column"`
	Count  int           `json:"count"`
	Mean   float64       `json:"mean"`
	Std    float64       `json:"std"`
	Min    float64       `json:"min"`
	P25    float64       `json:"p25"`
	P50    float64       `json:"p50"`
	P75    float64       `json:"p75"`
	Max    float64       `json:"max"`
}

type BoxSummary struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Q1    float64 `json:"q1"`
	Q2    float64 `json:"median"`
	Q3    float64 `json:"q3"`
	Max   float64 `json:"max"`
}

type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Facets holds the distinct values offered as filter choices.
type Facets struct {
	Countries     []string `json:"countries"`
	PropertyTypes []string `json:"property_types"`
	RoomTypes     []string `json:"room_types"`
	PriceMin      float64  `json:"price_min"`
	PriceMax      float64  `json:"price_max"`
}

func column(records []domain.ListingRecord, col domain.Column) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i], _ = r.Number(col)
	}
	return out
}

// Describe summarizes every numeric column. Std is the sample deviation.
func Describe(records []domain.ListingRecord) []ColumnSummary {
	out := make([]ColumnSummary, 0, len(domain.NumericColumns))
	for _, c := range domain.NumericColumns {
		vals := column(records, c)
		s := ColumnSummary{Column: c, Count: len(vals)}
		if len(vals) > 0 {
			sorted := sortedCopy(vals)
			s.Mean = mean(vals)
			s.Std = stdDev(vals)
			s.Min = sorted[0]
			s.P25 = quantile(sorted, 0.25)
			s.P50 = quantile(sorted, 0.50)
			s.P75 = quantile(sorted, 0.75)
			s.Max = sorted[len(sorted)-1]
		}
		out = append(out, s)
	}
	return out
}

// Outliers counts rows lying more than two standard deviations above the mean.
func Outliers(records []domain.ListingRecord) map[domain.Column]int {
	out := make(map[domain.Column]int, len(domain.NumericColumns))
	for _, c := range domain.NumericColumns {
		vals := column(records, c)
		m, sd := mean(vals), stdDev(vals)
		n := 0
		for _, v := range vals {
			if v-m > 2*sd {
				n++
			}
		}
		out[c] = n
	}
	return out
}

// BoxByGroup returns quartiles of a numeric column per group, in first-seen order.
func BoxByGroup(records []domain.ListingRecord, by, col domain.Column) ([]BoxSummary, error) {
	if !by.IsCategorical() {
		return nil, domain.UnknownColumn(string(by), "categorical")
	}
	if !col.IsNumeric() {
		return nil, domain.UnknownColumn(string(col), "numeric")
	}
	groups := groupBy(records, by, col)
	out := make([]BoxSummary, 0, len(groups))
	for _, g := range groups {
		s := sortedCopy(g.values)
		out = append(out, BoxSummary{
			Key:   g.key,
			Count: len(s),
			Min:   s[0],
			Q1:    quantile(s, 0.25),
			Q2:    quantile(s, 0.50),
			Q3:    quantile(s, 0.75),
			Max:   s[len(s)-1],
		})
	}
	return out, nil
}

// Histogram splits [min, max] of a numeric column into equal-width bins.
// The last bin is closed on the right.
func Histogram(records []domain.ListingRecord, col domain.Column, bins int) ([]Bin, error) {
	if err := checkHistogram(col, bins); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []Bin{}, nil
	}
	vals := column(records, col)
	b := newBinning(vals, bins)
	out := b.empty()
	for _, v := range vals {
		out[b.index(v)].Count++
	}
	return out, nil
}

type GroupBins struct {
	Key  string `json:"key"`
	Bins []Bin  `json:"bins"`
}

// HistogramByGroup bins col over all records, then counts each category of by
// against those shared edges. Groups keep first-seen order.
func HistogramByGroup(records []domain.ListingRecord, by, col domain.Column, bins int) ([]GroupBins, error) {
	if !by.IsCategorical() {
		return nil, domain.UnknownColumn(string(by), "categorical")
	}
	if err := checkHistogram(col, bins); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []GroupBins{}, nil
	}
	b := newBinning(column(records, col), bins)
	groups := groupBy(records, by, col)
	out := make([]GroupBins, 0, len(groups))
	for _, g := range groups {
		gb := GroupBins{Key: g.key, Bins: b.empty()}
		for _, v := range g.values {
			gb.Bins[b.index(v)].Count++
		}
		out = append(out, gb)
	}
	return out, nil
}

func checkHistogram(col domain.Column, bins int) error {
	if !col.IsNumeric() {
		return domain.UnknownColumn(string(col), "numeric")
	}
	if bins < 1 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidBins, bins)
	}
	return nil
}

// binning holds equal-width edges over [lo, hi]. A zero width means every
// value was equal and there is a single bin.
type binning struct {
	lo, hi, width float64
	n             int
}

func newBinning(vals []float64, bins int) binning {
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return binning{lo: lo, hi: hi, n: 1}
	}
	return binning{lo: lo, hi: hi, width: (hi - lo) / float64(bins), n: bins}
}

func (b binning) empty() []Bin {
	out := make([]Bin, b.n)
	for i := range out {
		out[i].Lower = b.lo + float64(i)*b.width
		out[i].Upper = b.lo + float64(i+1)*b.width
	}
	out[b.n-1].Upper = b.hi
	return out
}

func (b binning) index(v float64) int {
	if b.width == 0 {
		return 0
	}
	i := int((v - b.lo) / b.width)
	if i >= b.n {
		i = b.n - 1
	}
	return i
}

// ComputeFacets collects sorted distinct categories and the price extent.
func ComputeFacets(records []domain.ListingRecord) Facets {
	f := Facets{
		Countries:     distinct(records, domain.ColCountry),
		PropertyTypes: distinct(records, domain.ColPropertyType),
		RoomTypes:     distinct(records, domain.ColRoomType),
	}
	for i, r := range records {
		if i == 0 || r.Price < f.PriceMin {
			f.PriceMin = r.Price
		}
		if i == 0 || r.Price > f.PriceMax {
			f.PriceMax = r.Price
		}
	}
	return f
}

func distinct(records []domain.ListingRecord, col domain.Column) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, r := range records {
		v, _ := r.Category(col)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range sortedCopy(values) {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

// quantile interpolates linearly between closest ranks of an ascending slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
