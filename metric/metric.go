// Package metric implements the tagged metric algebra of spec.md §3-§4.3:
// single-column aggregates and numerator/denominator ratio metrics, each
// with per-metric row filters applied before aggregation.
package metric

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AggregateMethod is the column-level aggregation applied to a Single metric.
type AggregateMethod string

const (
	AggSum      AggregateMethod = "sum"
	AggCount    AggregateMethod = "count"
	AggDistinct AggregateMethod = "distinct"
)

// FilterOperator is the comparison applied by a Filter before aggregation.
type FilterOperator string

const (
	OpEQ       FilterOperator = "eq"
	OpNEQ      FilterOperator = "neq"
	OpEmpty    FilterOperator = "empty"
	OpNonEmpty FilterOperator = "non_empty"
)

// Filter restricts the rows that contribute to one metric's aggregation.
// Filters are per-metric: on a Dual metric they apply to numerator and
// denominator independently (spec.md §3).
type Filter struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Values   []string       `json:"values,omitempty"`
}

// SQL renders the filter as a SQL boolean expression usable in a WHERE
// clause against the frame's rows table. The column is double-quoted and
// values single-quoted, each with embedded quotes doubled. The column is
// not checked against the frame's schema; an unknown column makes the
// query fail.
func (f Filter) SQL() string {
	col := quoteIdent(f.Column)
	switch f.Operator {
	case OpEQ:
		return fmt.Sprintf("%s IN (%s)", col, quoteValueList(f.Values))
	case OpNEQ:
		return fmt.Sprintf("%s NOT IN (%s)", col, quoteValueList(f.Values))
	case OpEmpty:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", col, col)
	case OpNonEmpty:
		return fmt.Sprintf("(%s IS NOT NULL AND %s != '')", col, col)
	default:
		return "1=1"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteValueList(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += "'" + escapeSQLString(v) + "'"
	}
	if out == "" {
		return "NULL"
	}
	return out
}

func escapeSQLString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Metric is the tagged union Single | Dual of spec.md §3.
type Metric interface {
	// ID is the metric's canonical identifier: user-supplied for a Dual
	// metric, derived as column_AGG[_hash6(filters)] for a Single metric.
	ID() string
	// DisplayName is shown to operators; when no name is set it is the ID
	// for a Single metric and "<numerator>_over_<denominator>" for a Dual.
	DisplayName() string
	// Columns lists the raw frame columns this metric reads.
	Columns() []string
}

// Single is a single-column aggregate with an optional row filter.
type Single struct {
	Name   string          `json:"name,omitempty"`
	Column string          `json:"column"`
	Agg    AggregateMethod `json:"aggregation_method"`
	Filter []Filter        `json:"filters,omitempty"`
}

// ID implements Metric.
func (s Single) ID() string {
	if s.Name != "" {
		return s.Name
	}
	suffix := ""
	if len(s.Filter) > 0 {
		suffix = "_" + hashFilters(s.Filter)
	}
	return fmt.Sprintf("%s_%s%s", s.Column, string(s.Agg), suffix)
}

// DisplayName implements Metric.
func (s Single) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID()
}

// Columns implements Metric.
func (s Single) Columns() []string { return []string{s.Column} }

// AggExpr renders the SQL aggregate expression for this metric, applying
// its filter (if any) as a CASE guard so unfiltered rows contribute zero
// to this aggregate without being excluded from the group.
func (s Single) AggExpr(alias string) string {
	col := quoteIdent(s.Column)
	expr := col
	if len(s.Filter) > 0 {
		expr = fmt.Sprintf("CASE WHEN %s THEN %s ELSE NULL END", filtersSQL(s.Filter), col)
	}

	var aggregated string
	switch s.Agg {
	case AggSum:
		aggregated = fmt.Sprintf("SUM(%s)", expr)
	case AggCount:
		aggregated = fmt.Sprintf("COUNT(%s)", expr)
	case AggDistinct:
		aggregated = fmt.Sprintf("COUNT(DISTINCT %s)", expr)
	default:
		aggregated = fmt.Sprintf("SUM(%s)", expr)
	}
	return fmt.Sprintf("%s AS %s", aggregated, quoteIdent(alias))
}

func filtersSQL(filters []Filter) string {
	if len(filters) == 0 {
		return "1=1"
	}
	out := filters[0].SQL()
	for _, f := range filters[1:] {
		out += " AND " + f.SQL()
	}
	return out
}

func hashFilters(filters []Filter) string {
	sorted := make([]Filter, len(filters))
	copy(sorted, filters)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Column < sorted[j].Column })
	data, _ := json.Marshal(sorted)
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])[:6]
}

// Dual is a numerator/denominator ratio metric; its id and display name
// are always user-supplied (spec.md §3).
type Dual struct {
	Name        string `json:"name"`
	Numerator   Single `json:"numerator"`
	Denominator Single `json:"denominator"`
}

// ID implements Metric.
func (d Dual) ID() string { return d.Name }

// DisplayName implements Metric.
func (d Dual) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("%s_over_%s", d.Numerator.Column, d.Denominator.Column)
}

// Columns implements Metric.
func (d Dual) Columns() []string {
	return append(append([]string{}, d.Numerator.Columns()...), d.Denominator.Columns()...)
}

// WeightColumnID returns the alias of the metric's canonical weight
// column for weighted statistics (spec.md §4.3/§4.4): the numerator's id
// for a ratio metric, the metric's own id for a single-column metric.
func WeightColumnID(m Metric) string {
	if d, ok := m.(Dual); ok {
		return d.Numerator.ID()
	}
	return m.ID()
}

// Ratio computes num/den with the spec's zero/null fallback to 0.
func Ratio(num, den float64, denValid bool) float64 {
	if !denValid || den == 0 {
		return 0
	}
	return num / den
}
