// Package engine implements the segment insight engine: the metric cube
// analysis, key-dimension scoring, ranking and significance testing, and
// insight assembly of spec.md §3-§4. It is a stateless, synchronous batch
// computation over an already-materialized frame.Frame (spec.md §5).
package engine

import (
	"sort"
	"strings"
)

// DimensionValuePair is one dimension=value predicate of a segment key
// (spec.md §3). Values are always stringified at the boundary.
type DimensionValuePair struct {
	Dimension string `json:"dimension"`
	Value     string `json:"value"`
}

// SegmentKey is an ordered tuple of DimensionValuePair, sorted by
// dimension name so that equality and serialization are canonical.
type SegmentKey []DimensionValuePair

// Sorted returns a copy of k sorted by dimension name.
func (k SegmentKey) Sorted() SegmentKey {
	out := make(SegmentKey, len(k))
	copy(out, k)
	sort.Slice(out, func(i, j int) bool { return out[i].Dimension < out[j].Dimension })
	return out
}

// Serialize renders the canonical "d1:v1|d2:v2|..." form used as a map
// key throughout the engine and API.
func (k SegmentKey) Serialize() string {
	sorted := k.Sorted()
	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = p.Dimension + ":" + p.Value
	}
	return strings.Join(parts, "|")
}

// Dimensions returns the sorted dimension names of the key.
func (k SegmentKey) Dimensions() []string {
	sorted := k.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = p.Dimension
	}
	return out
}

// SubsetOf reports whether every dimension in k is present in allowed.
func (k SegmentKey) SubsetOf(allowed map[string]bool) bool {
	for _, p := range k {
		if !allowed[p.Dimension] {
			return false
		}
	}
	return true
}

// PeriodValue is a metric's value over one period, with the segment's
// row count and share of the period's total rows (spec.md §3).
type PeriodValue struct {
	Count int     `json:"count"`
	Size  float64 `json:"size"`
	Value float64 `json:"value"`
}

// SegmentInfo is one row of the segment frame Σ (spec.md §3/§4.4):
// baseline/comparison values, impact, change, absolute contribution, the
// segment's change deviation scaled by its subset's weighted-change
// dispersion (ChangeDev), and optional significance.
type SegmentInfo struct {
	Key                  SegmentKey `json:"-"`
	SerializedKey        string     `json:"serialized_key"`
	Baseline             PeriodValue `json:"baseline"`
	Comparison           PeriodValue `json:"comparison"`
	Impact               float64    `json:"impact"`
	Change               float64    `json:"change"`
	AbsoluteContribution float64    `json:"absolute_contribution"`
	ChangeDev            float64    `json:"change_dev"`
	Confidence           *float64   `json:"confidence,omitempty"`

	sortValue float64
}

// Dimension is a single dimension's key-dimension score (spec.md §3/§4.5).
type Dimension struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	IsKey bool    `json:"is_key"`
}

// DatedPoint is one point of a per-date metric series (spec.md §4.7).
type DatedPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// MetricInsight is the engine's root output document (spec.md §4.7).
type MetricInsight struct {
	ID                       string                 `json:"id"`
	Name                     string                 `json:"name"`
	ParentMetric             string                 `json:"parent_metric,omitempty"`
	Filters                  []string               `json:"filters,omitempty"`
	AggregationMethod        string                 `json:"aggregationMethod"`
	ExpectedChangePercentage float64                `json:"expectedChangePercentage"`
	BaselineDateRange        [2]string              `json:"baselineDateRange"`
	ComparisonDateRange      [2]string              `json:"comparisonDateRange"`
	BaselineNumRows          int                    `json:"baselineNumRows"`
	ComparisonNumRows        int                    `json:"comparisonNumRows"`
	BaselineValue            float64                `json:"baselineValue"`
	ComparisonValue          float64                `json:"comparisonValue"`
	BaselineValueByDate      []DatedPoint           `json:"baselineValueByDate"`
	ComparisonValueByDate    []DatedPoint           `json:"comparisonValueByDate"`
	Dimensions               map[string]Dimension   `json:"dimensions"`
	TotalSegments            int                    `json:"totalSegments"`
	KeyDimensions            []string               `json:"keyDimensions"`
	TopDriverSliceKeys       []string               `json:"topDriverSliceKeys"`
	DimensionSliceInfo       map[string]*SegmentInfo `json:"dimensionSliceInfo"`
}
