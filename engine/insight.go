package engine

import (
	"context"
	"fmt"
	"strings"

	"driftlens/frame"
	"driftlens/metric"
)

// EngineConfig tunes the engine's resource limits; mirrors
// config.EngineConfig so the engine package has no dependency on config.
type EngineConfig struct {
	WorkerPoolSize        int
	MaxDimensions         int
	MaxSegments           int
	MaxTopDrivers         int
	MinSegmentCoverage    float64
	KeyDimensionThreshold float64
}

// Analyze runs the full segment insight pipeline of spec.md §4 against f
// and returns one MetricInsight per metric id: the requested metric, plus
// (when it is a ratio) one sub-metric insight each for the numerator and
// denominator.
func Analyze(ctx context.Context, f *frame.Frame, req *AnalysisRequest, cfg EngineConfig, progress chan<- ProgressEvent) (map[string]*MetricInsight, error) {
	for _, d := range req.Dimensions {
		if !f.HasColumn(d) {
			return nil, ErrInvalidRequest(fmt.Sprintf("dimension %q is not a column of the frame", d))
		}
	}
	for _, col := range req.Metric.Columns() {
		if col != "" && !f.HasColumn(col) {
			return nil, ErrInvalidRequest(fmt.Sprintf("metric column %q is not a column of the frame", col))
		}
	}

	filterSQL := "1=1"
	if len(req.Filters) > 0 {
		parts := make([]string, len(req.Filters))
		for i, flt := range req.Filters {
			parts[i] = flt.SQL()
		}
		filterSQL = strings.Join(parts, " AND ")
	}

	universe := frame.NewView(f, filterSQL)
	universeCount, err := universe.Count(ctx)
	if err != nil {
		return nil, ErrInternal(err.Error())
	}
	if universeCount == 0 {
		return nil, ErrEmptyDataset("no rows match the request's filters")
	}

	dateExpr := frame.CanonicalDateExpr(req.DateColumn, req.DateColumnType)
	baseline := universe.And(fmt.Sprintf("%s BETWEEN '%s' AND '%s'", dateExpr, req.BaselineRange.From, req.BaselineRange.To))
	comparison := universe.And(fmt.Sprintf("%s BETWEEN '%s' AND '%s'", dateExpr, req.ComparisonRange.From, req.ComparisonRange.To))

	baselineCount, err := baseline.Count(ctx)
	if err != nil {
		return nil, ErrInternal(err.Error())
	}
	comparisonCount, err := comparison.Count(ctx)
	if err != nil {
		return nil, ErrInternal(err.Error())
	}
	if baselineCount == 0 || comparisonCount == 0 {
		return nil, ErrEmptyDataset("baseline or comparison window has no rows")
	}

	out := map[string]*MetricInsight{}

	primary, err := buildMetricInsight(ctx, baseline, comparison, req, req.Metric, dateExpr, cfg, baselineCount, comparisonCount, "", progress)
	if err != nil {
		return nil, err
	}
	out[primary.ID] = primary

	if dual, ok := req.Metric.(metric.Dual); ok {
		numInsight, err := buildMetricInsight(ctx, baseline, comparison, req, dual.Numerator, dateExpr, cfg, baselineCount, comparisonCount, primary.ID, progress)
		if err != nil {
			return nil, err
		}
		out[numInsight.ID] = numInsight

		denInsight, err := buildMetricInsight(ctx, baseline, comparison, req, dual.Denominator, dateExpr, cfg, baselineCount, comparisonCount, primary.ID, progress)
		if err != nil {
			return nil, err
		}
		out[denInsight.ID] = denInsight
	}

	if progress != nil {
		close(progress)
	}

	return out, nil
}

func buildMetricInsight(ctx context.Context, baseline, comparison frame.View, req *AnalysisRequest, m metric.Metric, dateExpr string, cfg EngineConfig, baselineCount, comparisonCount int, parentMetric string, progress chan<- ProgressEvent) (*MetricInsight, error) {
	rows, err := AnalyzeSubsets(ctx, baseline, comparison, req.Dimensions, m, dateExpr, req.ExpectedChange, req.MaxDimensions, cfg.WorkerPoolSize, progress)
	if err != nil {
		return nil, ErrInternal(err.Error())
	}

	for _, r := range rows {
		if baselineCount > 0 {
			r.info.Baseline.Size = float64(r.info.Baseline.Count) / float64(baselineCount)
		}
		if comparisonCount > 0 {
			r.info.Comparison.Size = float64(r.info.Comparison.Count) / float64(comparisonCount)
		}
	}

	var singleDimRows []*cubeRow
	for _, r := range rows {
		if r.dimWeight == 1 {
			singleDimRows = append(singleDimRows, r)
		}
	}
	dimensionScores := ScoreDimensions(singleDimRows, cfg.KeyDimensionThreshold)

	keySet := map[string]bool{}
	var keyDimNames []string
	for name, d := range dimensionScores {
		if d.IsKey {
			keySet[name] = true
			keyDimNames = append(keyDimNames, name)
		}
	}

	totalRowsAcrossPeriods := baselineCount + comparisonCount
	ordered := PruneAndOrder(rows, totalRowsAcrossPeriods, cfg.MaxSegments, cfg.MinSegmentCoverage)

	topDrivers := SelectTopDrivers(ordered, keySet, cfg.MaxTopDrivers)

	isSubMetric := parentMetric != ""
	if !isSubMetric {
		if err := ApplySignificance(ctx, baseline, comparison, dateExpr, m, topDrivers); err != nil {
			return nil, ErrInternal(err.Error())
		}
	}

	dimensionSliceInfo := make(map[string]*SegmentInfo, len(ordered))
	for _, r := range ordered {
		info := r.info
		dimensionSliceInfo[info.SerializedKey] = &info
	}

	topDriverKeys := make([]string, 0, len(topDrivers))
	for _, r := range topDrivers {
		topDriverKeys = append(topDriverKeys, r.info.SerializedKey)
	}

	globalBaseline, err := globalTotals(ctx, baseline, m, dateExpr)
	if err != nil {
		return nil, ErrInternal(err.Error())
	}
	globalComparison, err := globalTotals(ctx, comparison, m, dateExpr)
	if err != nil {
		return nil, ErrInternal(err.Error())
	}

	baselineSeries, err := baseline.ValueByDate(ctx, dateExpr, m)
	if err != nil {
		return nil, ErrInternal(err.Error())
	}
	comparisonSeries, err := comparison.ValueByDate(ctx, dateExpr, m)
	if err != nil {
		return nil, ErrInternal(err.Error())
	}

	insight := &MetricInsight{
		ID:                       m.ID(),
		Name:                     m.DisplayName(),
		ParentMetric:             parentMetric,
		Filters:                  renderFilters(m),
		AggregationMethod:        aggregationMethodOf(m),
		ExpectedChangePercentage: req.ExpectedChange,
		BaselineDateRange:        [2]string{req.BaselineRange.From, req.BaselineRange.To},
		ComparisonDateRange:      [2]string{req.ComparisonRange.From, req.ComparisonRange.To},
		BaselineNumRows:          baselineCount,
		ComparisonNumRows:        comparisonCount,
		BaselineValue:            resolveValue(m, globalBaseline.Metrics),
		ComparisonValue:          resolveValue(m, globalComparison.Metrics),
		BaselineValueByDate:      toDatedPoints(baselineSeries),
		ComparisonValueByDate:    toDatedPoints(comparisonSeries),
		Dimensions:               dimensionScores,
		TotalSegments:            len(ordered),
		KeyDimensions:            keyDimNames,
		TopDriverSliceKeys:       topDriverKeys,
		DimensionSliceInfo:       dimensionSliceInfo,
	}
	return insight, nil
}

func toDatedPoints(series []frame.DatedValue) []DatedPoint {
	out := make([]DatedPoint, len(series))
	for i, p := range series {
		out[i] = DatedPoint{Date: p.Date, Value: p.Value}
	}
	return out
}

func aggregationMethodOf(m metric.Metric) string {
	switch t := m.(type) {
	case metric.Single:
		return string(t.Agg)
	case metric.Dual:
		return "ratio"
	default:
		return ""
	}
}

func renderFilters(m metric.Metric) []string {
	s, ok := m.(metric.Single)
	if !ok || len(s.Filter) == 0 {
		return nil
	}
	out := make([]string, len(s.Filter))
	for i, f := range s.Filter {
		out[i] = fmt.Sprintf("%s %s %v", f.Column, f.Operator, f.Values)
	}
	return out
}
