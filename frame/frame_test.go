package frame

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftlens/metric"
)

func writeCSV(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

const e1CSV = `date,country,device,revenue
2024-01-01,US,ios,10
2024-01-01,US,and,5
2024-01-02,CA,ios,3
2024-02-01,US,ios,20
2024-02-01,US,and,6
2024-02-02,CA,ios,10
`

func openE1Frame(t *testing.T) *Frame {
	t.Helper()
	dir := t.TempDir()
	csvPath := writeCSV(t, dir, "e1.csv", e1CSV)
	f, err := Open(context.Background(), csvPath, filepath.Join(dir, "e1.db"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestOpenInfersColumnTypes(t *testing.T) {
	f := openE1Frame(t)
	cols := map[string]ColumnType{}
	for _, c := range f.Columns() {
		cols[c.Name] = c.Type
	}
	assert.Equal(t, ColumnText, cols["date"])
	assert.Equal(t, ColumnText, cols["country"])
	assert.Equal(t, ColumnReal, cols["revenue"])
	assert.Equal(t, 6, f.RowCount())
}

func TestGroupByAggregatesSumMetric(t *testing.T) {
	f := openE1Frame(t)
	dateExpr := CanonicalDateExpr("date", DateTypeDate)
	comparison := NewView(f, dateExpr+" BETWEEN '2024-02-01' AND '2024-02-02'")

	m := metric.Single{Column: "revenue", Agg: metric.AggSum}
	rows, err := comparison.GroupBy(context.Background(), []string{"country"}, []metric.Metric{m}, dateExpr)
	require.NoError(t, err)

	byCountry := map[string]float64{}
	for _, r := range rows {
		byCountry[r.Key["country"]] = r.Metrics[m.ID()]
	}
	assert.Equal(t, 26.0, byCountry["US"])
	assert.Equal(t, 10.0, byCountry["CA"])
}

func TestGroupByWholeViewWithNoDims(t *testing.T) {
	f := openE1Frame(t)
	dateExpr := CanonicalDateExpr("date", DateTypeDate)
	baseline := NewView(f, dateExpr+" BETWEEN '2024-01-01' AND '2024-01-02'")

	m := metric.Single{Column: "revenue", Agg: metric.AggSum}
	rows, err := baseline.GroupBy(context.Background(), nil, []metric.Metric{m}, dateExpr)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 18.0, rows[0].Metrics[m.ID()])
}

func TestValueByDateOrdersAscending(t *testing.T) {
	f := openE1Frame(t)
	dateExpr := CanonicalDateExpr("date", DateTypeDate)
	view := NewView(f, "1=1")

	m := metric.Single{Column: "revenue", Agg: metric.AggSum}
	series, err := view.ValueByDate(context.Background(), dateExpr, m)
	require.NoError(t, err)
	require.Len(t, series, 4)
	assert.Equal(t, "2024-01-01", series[0].Date)
	assert.Equal(t, "2024-02-02", series[3].Date)
}

func TestRatioMetricGroupByExposesBothComponents(t *testing.T) {
	f := openE1Frame(t)
	dateExpr := CanonicalDateExpr("date", DateTypeDate)
	view := NewView(f, dateExpr+" BETWEEN '2024-01-01' AND '2024-01-02'")

	ratio := metric.Dual{
		Name:        "revenue_per_day",
		Numerator:   metric.Single{Column: "revenue", Agg: metric.AggSum},
		Denominator: metric.Single{Column: "date", Agg: metric.AggCount},
	}
	rows, err := view.GroupBy(context.Background(), nil, []metric.Metric{ratio}, dateExpr)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 18.0, rows[0].Metrics[ratio.Numerator.ID()])
	assert.Equal(t, 3.0, rows[0].Metrics[ratio.Denominator.ID()])
}
