package frame

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"driftlens/metric"
)

// View is a read-only, filtered window over a Frame (spec.md §4.2's B/C
// sub-frames, and the engine's per-request row filters). Views share the
// parent Frame's sqlite connection; they never mutate it.
type View struct {
	frame *Frame
	where string
}

// NewView wraps frame with a SQL boolean where-clause; pass "1=1" for no
// filter.
func NewView(f *Frame, where string) View {
	if where == "" {
		where = "1=1"
	}
	return View{frame: f, where: where}
}

// And returns a narrower view combining this view's filter with extra.
func (v View) And(extra string) View {
	if extra == "" {
		return v
	}
	return View{frame: v.frame, where: fmt.Sprintf("(%s) AND (%s)", v.where, extra)}
}

// Count returns the number of rows matching the view's filter.
func (v View) Count(ctx context.Context) (int, error) {
	var n int
	q := fmt.Sprintf("SELECT COUNT(*) FROM rows WHERE %s", v.where)
	err := v.frame.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

// Row is one group produced by GroupBy: the dimension values that define
// the group, the row count backing it, and every requested metric
// component's aggregated value keyed by its component id (a Single
// metric's own id, or a Dual metric's numerator/denominator ids).
type Row struct {
	Key     map[string]string
	Count   float64
	Metrics map[string]float64
}

// metricComponents returns the Single aggregates that must be computed
// for m: itself if Single, numerator+denominator if Dual.
func metricComponents(m metric.Metric) []metric.Single {
	switch t := m.(type) {
	case metric.Single:
		return []metric.Single{t}
	case metric.Dual:
		return []metric.Single{t.Numerator, t.Denominator}
	default:
		return nil
	}
}

// GroupBy groups the view by dims (empty dims means the whole view as one
// group) and applies every metric's aggregation expressions plus the
// mandatory count(dateExpr) (spec.md §4.3). dateExpr is a raw SQL
// expression (e.g. the canonical date column, or "*" to count all rows).
func (v View) GroupBy(ctx context.Context, dims []string, metrics []metric.Metric, dateExpr string) ([]Row, error) {
	selectCols := make([]string, 0, len(dims)+len(metrics)+1)
	for _, d := range dims {
		selectCols = append(selectCols, quoteIdent(d))
	}

	seen := map[string]bool{}
	for _, m := range metrics {
		for _, comp := range metricComponents(m) {
			if seen[comp.ID()] {
				continue
			}
			seen[comp.ID()] = true
			selectCols = append(selectCols, comp.AggExpr(comp.ID()))
		}
	}
	selectCols = append(selectCols, fmt.Sprintf("COUNT(%s) AS %s", dateExpr, quoteIdent("count")))

	q := fmt.Sprintf("SELECT %s FROM rows WHERE %s", strings.Join(selectCols, ", "), v.where)
	if len(dims) > 0 {
		groupCols := make([]string, len(dims))
		for i, d := range dims {
			groupCols[i] = quoteIdent(d)
		}
		q += " GROUP BY " + strings.Join(groupCols, ", ")
	}

	rows, err := v.frame.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("group by query: %w", err)
	}
	defer rows.Close()

	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		scanDest := make([]interface{}, len(colNames))
		scanPtrs := make([]interface{}, len(colNames))
		for i := range scanDest {
			scanPtrs[i] = &scanDest[i]
		}
		if err := rows.Scan(scanPtrs...); err != nil {
			return nil, err
		}

		row := Row{Key: map[string]string{}, Metrics: map[string]float64{}}
		for i, name := range colNames {
			switch {
			case i < len(dims):
				row.Key[name] = stringify(scanDest[i])
			case name == "count":
				row.Count = toFloat(scanDest[i])
			default:
				row.Metrics[name] = toFloat(scanDest[i])
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case int64:
		return float64(t)
	case []byte:
		var f float64
		fmt.Sscanf(string(t), "%g", &f)
		return f
	default:
		return 0
	}
}

// ValueByDate groups the view by its canonical date expression and
// applies the metric's own aggregation (spec.md §4.7's
// baselineValueByDate/comparisonValueByDate), sorted ascending by date.
func (v View) ValueByDate(ctx context.Context, dateExpr string, m metric.Metric) ([]DatedValue, error) {
	selectCols := []string{fmt.Sprintf("%s AS %s", dateExpr, quoteIdent("bucket_date"))}
	for _, comp := range metricComponents(m) {
		selectCols = append(selectCols, comp.AggExpr(comp.ID()))
	}

	q := fmt.Sprintf("SELECT %s FROM rows WHERE %s GROUP BY %s ORDER BY %s ASC",
		strings.Join(selectCols, ", "), v.where, quoteIdent("bucket_date"), quoteIdent("bucket_date"))

	rows, err := v.frame.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("value by date query: %w", err)
	}
	defer rows.Close()

	var out []DatedValue
	for rows.Next() {
		var date sql.NullString
		components := make([]float64, len(metricComponents(m)))
		dest := make([]interface{}, 1+len(components))
		dest[0] = &date
		for i := range components {
			dest[i+1] = &components[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, DatedValue{Date: date.String, Value: resolveMetricValue(m, components)})
	}
	return out, rows.Err()
}

// DatedValue is one point of a per-date metric series.
type DatedValue struct {
	Date  string
	Value float64
}

func resolveMetricValue(m metric.Metric, components []float64) float64 {
	if _, ok := m.(metric.Dual); ok && len(components) == 2 {
		return metric.Ratio(components[0], components[1], true)
	}
	if len(components) == 1 {
		return components[0]
	}
	return 0
}
