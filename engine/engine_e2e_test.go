package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftlens/frame"
	"driftlens/metric"
)

func writeCSV(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func openFrame(t *testing.T, name, csv string) *frame.Frame {
	t.Helper()
	dir := t.TempDir()
	csvPath := writeCSV(t, dir, name+".csv", csv)
	f, err := frame.Open(context.Background(), csvPath, filepath.Join(dir, name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

var defaultCfg = EngineConfig{
	WorkerPoolSize:        4,
	MaxDimensions:         3,
	MaxSegments:           20000,
	MaxTopDrivers:         1000,
	MinSegmentCoverage:    0.01,
	KeyDimensionThreshold: 0.02,
}

const e1CSV = `date,country,device,revenue
2024-01-01,US,ios,10
2024-01-01,US,and,5
2024-01-02,CA,ios,3
2024-02-01,US,ios,20
2024-02-01,US,and,6
2024-02-02,CA,ios,10
`

// E1: plain SUM metric over the two-dimension cube.
func TestE1SumMetricSegmentValues(t *testing.T) {
	f := openFrame(t, "e1", e1CSV)
	req, err := NewAnalysisRequest(AnalysisRequest{
		DateColumn:      "date",
		BaselineRange:   DateRange{From: "2024-01-01", To: "2024-01-02"},
		ComparisonRange: DateRange{From: "2024-02-01", To: "2024-02-02"},
		Dimensions:      []string{"country", "device"},
		Metric:          metric.Single{Column: "revenue", Agg: metric.AggSum},
		MaxDimensions:   2,
	})
	require.NoError(t, err)

	out, err := Analyze(context.Background(), f, req, defaultCfg, nil)
	require.NoError(t, err)

	insight := out[metric.Single{Column: "revenue", Agg: metric.AggSum}.ID()]
	require.NotNil(t, insight)
	assert.Equal(t, 18.0, insight.BaselineValue)
	assert.Equal(t, 36.0, insight.ComparisonValue)

	us := insight.DimensionSliceInfo["country:US"]
	require.NotNil(t, us)
	assert.Equal(t, 15.0, us.Baseline.Value)
	assert.Equal(t, 26.0, us.Comparison.Value)
	assert.Equal(t, 11.0, us.Impact)

	usIOS := insight.DimensionSliceInfo["country:US|device:ios"]
	require.NotNil(t, usIOS)
	assert.Equal(t, 10.0, usIOS.Baseline.Value)
	assert.Equal(t, 20.0, usIOS.Comparison.Value)
	assert.Equal(t, 10.0, usIOS.Impact)
}

// E2: ratio metric SUM(revenue)/COUNT(date).
func TestE2RatioMetricSegmentValues(t *testing.T) {
	f := openFrame(t, "e2", e1CSV)
	ratio := metric.Dual{
		Name:        "revenue_per_day",
		Numerator:   metric.Single{Column: "revenue", Agg: metric.AggSum},
		Denominator: metric.Single{Column: "date", Agg: metric.AggCount},
	}
	req, err := NewAnalysisRequest(AnalysisRequest{
		DateColumn:      "date",
		BaselineRange:   DateRange{From: "2024-01-01", To: "2024-01-02"},
		ComparisonRange: DateRange{From: "2024-02-01", To: "2024-02-02"},
		Dimensions:      []string{"country", "device"},
		Metric:          ratio,
		MaxDimensions:   2,
	})
	require.NoError(t, err)

	out, err := Analyze(context.Background(), f, req, defaultCfg, nil)
	require.NoError(t, err)

	insight := out[ratio.ID()]
	require.NotNil(t, insight)
	assert.Equal(t, 6.0, insight.BaselineValue)
	assert.Equal(t, 12.0, insight.ComparisonValue)

	us := insight.DimensionSliceInfo["country:US"]
	require.NotNil(t, us)
	assert.Equal(t, 7.5, us.Baseline.Value)
	assert.Equal(t, 13.0, us.Comparison.Value)

	// Key-dimension scoring must weigh segments by the ratio metric's
	// weight column (the numerator's mass), not by the ratio value
	// itself: country's swing (driven by a much larger revenue mass than
	// device's) is the key dimension here, device is not.
	country := insight.Dimensions["country"]
	device := insight.Dimensions["device"]
	assert.InDelta(t, 0.6840, country.Score, 1e-3)
	assert.InDelta(t, 0.4461, device.Score, 1e-3)
	assert.True(t, country.IsKey)
	assert.False(t, device.IsKey)
	assert.Equal(t, []string{"country"}, insight.KeyDimensions)
}

// E3: SUM(revenue) with a per-metric filter device=ios, over an extended
// comparison window that picks up a new zero-revenue row.
func TestE3FilteredMetricRestrictsAggregation(t *testing.T) {
	csv := e1CSV + "2024-02-03,US,ios,0\n"
	f := openFrame(t, "e3", csv)

	m := metric.Single{
		Column: "revenue",
		Agg:    metric.AggSum,
		Filter: []metric.Filter{{Column: "device", Operator: metric.OpEQ, Values: []string{"ios"}}},
	}
	req, err := NewAnalysisRequest(AnalysisRequest{
		DateColumn:      "date",
		BaselineRange:   DateRange{From: "2024-01-01", To: "2024-01-02"},
		ComparisonRange: DateRange{From: "2024-02-01", To: "2024-02-03"},
		Dimensions:      []string{"country", "device"},
		Metric:          m,
		MaxDimensions:   2,
	})
	require.NoError(t, err)

	out, err := Analyze(context.Background(), f, req, defaultCfg, nil)
	require.NoError(t, err)

	insight := out[m.ID()]
	require.NotNil(t, insight)
	assert.Equal(t, 13.0, insight.BaselineValue)
	assert.Equal(t, 30.0, insight.ComparisonValue)
}

// E4: two dimensions whose every value changes identically; neither
// becomes a key dimension and no top driver is selected.
func TestE4UniformChangeProducesNoKeyDimension(t *testing.T) {
	csv := `date,country,device,value
2024-01-01,US,ios,10
2024-01-01,US,and,10
2024-01-01,CA,ios,10
2024-01-01,CA,and,10
2024-02-01,US,ios,20
2024-02-01,US,and,20
2024-02-01,CA,ios,20
2024-02-01,CA,and,20
`
	f := openFrame(t, "e4", csv)
	req, err := NewAnalysisRequest(AnalysisRequest{
		DateColumn:      "date",
		BaselineRange:   DateRange{From: "2024-01-01", To: "2024-01-01"},
		ComparisonRange: DateRange{From: "2024-02-01", To: "2024-02-01"},
		Dimensions:      []string{"country", "device"},
		Metric:          metric.Single{Column: "value", Agg: metric.AggSum},
		MaxDimensions:   2,
	})
	require.NoError(t, err)

	out, err := Analyze(context.Background(), f, req, defaultCfg, nil)
	require.NoError(t, err)

	insight := out[metric.Single{Column: "value", Agg: metric.AggSum}.ID()]
	require.NotNil(t, insight)

	for _, d := range insight.Dimensions {
		assert.InDelta(t, 0.0, d.Score, 1e-9, "dimension %s should score ~0", d.Name)
		assert.False(t, d.IsKey)
	}
	assert.Empty(t, insight.TopDriverSliceKeys)
}

// E5: a single dimension value flips from zero to a large comparison
// value while the country's other value is unchanged; the second
// dimension has only one value and so no dispersion. The volatile
// dimension dominates scoring and its segment sorts first.
func TestE5SingleValueSpikeDominatesScoring(t *testing.T) {
	csv := `date,country,device,value
2024-01-01,US,ios,10
2024-02-01,US,ios,10
2024-02-01,CA,ios,1000
`
	f := openFrame(t, "e5", csv)
	req, err := NewAnalysisRequest(AnalysisRequest{
		DateColumn:      "date",
		BaselineRange:   DateRange{From: "2024-01-01", To: "2024-01-01"},
		ComparisonRange: DateRange{From: "2024-02-01", To: "2024-02-01"},
		Dimensions:      []string{"country", "device"},
		Metric:          metric.Single{Column: "value", Agg: metric.AggSum},
		MaxDimensions:   2,
	})
	require.NoError(t, err)

	out, err := Analyze(context.Background(), f, req, defaultCfg, nil)
	require.NoError(t, err)

	insight := out[metric.Single{Column: "value", Agg: metric.AggSum}.ID()]
	require.NotNil(t, insight)

	country := insight.Dimensions["country"]
	assert.True(t, country.IsKey)
	assert.Greater(t, country.Score, defaultCfg.KeyDimensionThreshold)

	require.NotEmpty(t, insight.TopDriverSliceKeys)
	assert.Equal(t, "country:CA", insight.TopDriverSliceKeys[0])
}

// E6: the baseline window has no matching rows.
func TestE6EmptyBaselineWindowReturnsEmptyDataset(t *testing.T) {
	f := openFrame(t, "e6", e1CSV)
	req, err := NewAnalysisRequest(AnalysisRequest{
		DateColumn:      "date",
		BaselineRange:   DateRange{From: "2024-05-01", To: "2024-05-31"},
		ComparisonRange: DateRange{From: "2024-02-01", To: "2024-02-02"},
		Dimensions:      []string{"country", "device"},
		Metric:          metric.Single{Column: "revenue", Agg: metric.AggSum},
	})
	require.NoError(t, err)

	_, err = Analyze(context.Background(), f, req, defaultCfg, nil)
	require.Error(t, err)
	engineErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindEmptyDataset, engineErr.Kind)
}
