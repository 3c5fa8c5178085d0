package engine

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"driftlens/frame"
	"driftlens/metric"
)

// rawSegment accumulates one segment's raw aggregate components across
// the baseline and comparison periods before the weighted statistics of
// spec.md §4.4 step 4 are derived.
type rawSegment struct {
	key        SegmentKey
	compC      map[string]float64
	compB      map[string]float64
	countC     float64
	countB     float64
}

func buildSegmentKey(dims []string, values map[string]string) SegmentKey {
	key := make(SegmentKey, len(dims))
	for i, d := range dims {
		key[i] = DimensionValuePair{Dimension: d, Value: values[d]}
	}
	return key.Sorted()
}

// globalTotals computes the whole-view aggregate of m (no grouping), used
// as S_B/S_C (or numerator/denominator totals) for absolute contribution.
func globalTotals(ctx context.Context, view frame.View, m metric.Metric, dateExpr string) (frame.Row, error) {
	rows, err := view.GroupBy(ctx, nil, []metric.Metric{m}, dateExpr)
	if err != nil {
		return frame.Row{}, err
	}
	if len(rows) == 0 {
		return frame.Row{Metrics: map[string]float64{}}, nil
	}
	return rows[0], nil
}

// subsetsUpTo enumerates every non-empty subset of dims of size 1..maxK,
// smaller subsets first (spec.md §4.4 step 3).
func subsetsUpTo(dims []string, maxK int) [][]string {
	n := len(dims)
	if maxK > n {
		maxK = n
	}
	var out [][]string
	var combo func(start int, cur []string, k int)
	combo = func(start int, cur []string, k int) {
		if len(cur) == k {
			copyCur := make([]string, len(cur))
			copy(copyCur, cur)
			out = append(out, copyCur)
			return
		}
		for i := start; i < n; i++ {
			combo(i+1, append(cur, dims[i]), k)
		}
	}
	for k := 1; k <= maxK; k++ {
		combo(0, nil, k)
	}
	return out
}

// subsetResult is one dimension subset's contribution to the segment
// frame Σ, plus the subset-scoped weighted statistics of step 4.
type subsetResult struct {
	segments []*rawSegment
	dims     []string
}

// computeSubset runs the per-group aggregation and outer join of spec.md
// §4.4 steps 1-2 directly against subset's columns (SUM over a subset is
// equal to rolling up the full-dimension join, by SUM associativity, so
// the full joined base is never materialized as a separate structure).
func computeSubset(ctx context.Context, baseline, comparison frame.View, subset []string, m metric.Metric, dateExpr string) (*subsetResult, error) {
	bRows, err := baseline.GroupBy(ctx, subset, []metric.Metric{m}, dateExpr)
	if err != nil {
		return nil, err
	}
	cRows, err := comparison.GroupBy(ctx, subset, []metric.Metric{m}, dateExpr)
	if err != nil {
		return nil, err
	}

	bySerialized := map[string]*rawSegment{}
	order := make([]string, 0, len(bRows)+len(cRows))

	get := func(row frame.Row) *rawSegment {
		key := buildSegmentKey(subset, row.Key)
		serialized := key.Serialize()
		seg, ok := bySerialized[serialized]
		if !ok {
			seg = &rawSegment{key: key, compC: map[string]float64{}, compB: map[string]float64{}}
			bySerialized[serialized] = seg
			order = append(order, serialized)
		}
		return seg
	}

	for _, row := range bRows {
		seg := get(row)
		seg.countB = row.Count
		for id, v := range row.Metrics {
			seg.compB[id] = v
		}
	}
	for _, row := range cRows {
		seg := get(row)
		seg.countC = row.Count
		for id, v := range row.Metrics {
			seg.compC[id] = v
		}
	}

	segments := make([]*rawSegment, len(order))
	for i, key := range order {
		segments[i] = bySerialized[key]
	}
	return &subsetResult{segments: segments, dims: subset}, nil
}

func resolveValue(m metric.Metric, comp map[string]float64) float64 {
	if d, ok := m.(metric.Dual); ok {
		return metric.Ratio(comp[d.Numerator.ID()], comp[d.Denominator.ID()], true)
	}
	if s, ok := m.(metric.Single); ok {
		return comp[s.ID()]
	}
	return 0
}

func weightValue(m metric.Metric, comp map[string]float64) float64 {
	return comp[metric.WeightColumnID(m)]
}

func signFallback(v float64) float64 {
	if v > 0 {
		return 1
	}
	if v < 0 {
		return -1
	}
	return 0
}

// changeOf implements spec.md §4.4 step 4's change formula, with the
// sign-fallback this spec adopts for a zero baseline (Open Question §9).
func changeOf(current, baseline float64) float64 {
	if baseline == 0 {
		return signFallback(current)
	}
	return (current - baseline) / baseline
}

// cubeRow is one fully-computed row of the segment frame Σ.
type cubeRow struct {
	key        SegmentKey
	info       SegmentInfo
	weight     float64
	changeVal  float64
	dimWeight  int // 1 iff single-dimension segment (spec.md §4.4 step 7)
	changeVariance float64
}

// AnalyzeSubsets runs the cube analyzer's subset enumeration with a
// bounded worker pool (spec.md §5), then computes steps 4 and 6 (per-subset
// weighted statistics, absolute contribution, change variance) and
// returns the unsorted, unpruned segment frame. progress, if non-nil,
// receives one event per completed subset; sends never block the pool.
func AnalyzeSubsets(ctx context.Context, baseline, comparison frame.View, dims []string, m metric.Metric, dateExpr string, expectedChange float64, maxDimensions, workerPoolSize int, progress chan<- ProgressEvent) ([]*cubeRow, error) {
	subsets := subsetsUpTo(dims, maxDimensions)

	globalC, err := globalTotals(ctx, comparison, m, dateExpr)
	if err != nil {
		return nil, err
	}
	globalB, err := globalTotals(ctx, baseline, m, dateExpr)
	if err != nil {
		return nil, err
	}

	if workerPoolSize <= 0 {
		workerPoolSize = runtime.NumCPU()
	}
	sem := make(chan struct{}, workerPoolSize)

	results := make([]*subsetResult, len(subsets))
	errs := make([]error, len(subsets))

	var completed int32
	var wg sync.WaitGroup
	for i, subset := range subsets {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, subset []string) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := computeSubset(ctx, baseline, comparison, subset, m, dateExpr)
			results[i] = res
			errs[i] = err
			if progress != nil {
				n := atomic.AddInt32(&completed, 1)
				select {
				case progress <- ProgressEvent{MetricID: m.ID(), Completed: int(n), Total: len(subsets)}:
				default:
				}
			}
		}(i, subset)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var rows []*cubeRow
	for _, res := range results {
		subsetRows := finalizeSubset(res, m, expectedChange, globalB, globalC)
		rows = append(rows, subsetRows...)
	}
	return rows, nil
}

// finalizeSubset implements spec.md §4.4 steps 4 and 6 for one subset's
// raw segments: weighted change statistics, absolute contribution, and
// per-row change variance.
func finalizeSubset(res *subsetResult, m metric.Metric, expectedChange float64, globalB, globalC frame.Row) []*cubeRow {
	type partial struct {
		seg          *rawSegment
		mC, mB       float64
		weight       float64
		change       float64
		calibrated   float64
		weightedChg  float64
	}

	partials := make([]partial, len(res.segments))
	var sumWeightedChange, sumWeight float64

	for i, seg := range res.segments {
		mC := resolveValue(m, seg.compC)
		mB := resolveValue(m, seg.compB)
		wC := weightValue(m, seg.compC)
		wB := weightValue(m, seg.compB)
		weight := wC + wB
		change := changeOf(mC, mB)
		calibrated := change - expectedChange
		weightedChg := weight * calibrated

		partials[i] = partial{seg: seg, mC: mC, mB: mB, weight: weight, change: change, calibrated: calibrated, weightedChg: weightedChg}
		sumWeightedChange += weightedChg
		sumWeight += weight
	}

	weightedMean := 0.0
	if sumWeight != 0 {
		weightedMean = sumWeightedChange / sumWeight
	}

	var sumSquares float64
	for _, p := range partials {
		d := p.change - weightedMean
		sumSquares += p.weight * d * d
	}
	weightedStd := 0.0
	if sumWeight != 0 {
		weightedStd = math.Sqrt(sumSquares / sumWeight)
	}

	isSingleDim := len(res.dims) == 1
	dimWeight := 0
	if isSingleDim {
		dimWeight = 1
	}

	out := make([]*cubeRow, len(partials))
	for i, p := range partials {
		var absContribution float64
		if d, ok := m.(metric.Dual); ok {
			absContribution = absoluteContributionRatio(
				globalB.Metrics[d.Numerator.ID()], globalB.Metrics[d.Denominator.ID()],
				globalC.Metrics[d.Numerator.ID()], globalC.Metrics[d.Denominator.ID()],
				p.seg.compB[d.Numerator.ID()], p.seg.compB[d.Denominator.ID()],
				p.seg.compC[d.Numerator.ID()], p.seg.compC[d.Denominator.ID()],
			)
		} else if s, ok := m.(metric.Single); ok {
			absContribution = absoluteContributionSingle(globalB.Metrics[s.ID()], globalC.Metrics[s.ID()], p.mB, p.mC)
		}

		changeVariance := 0.0
		if weightedStd != 0 && sumWeight != 0 {
			changeVariance = math.Abs(p.change-expectedChange) / weightedStd * math.Sqrt(p.weight/sumWeight)
		}

		sortVal := sortValueOf(m, p.seg, p.mC, p.mB)

		baselineCount := int(p.seg.countB)
		comparisonCount := int(p.seg.countC)

		info := SegmentInfo{
			Key:                  p.seg.key,
			SerializedKey:        p.seg.key.Serialize(),
			Baseline:             PeriodValue{Count: baselineCount, Value: p.mB},
			Comparison:           PeriodValue{Count: comparisonCount, Value: p.mC},
			Impact:               p.mC - p.mB,
			Change:               p.change,
			AbsoluteContribution: absContribution,
			ChangeDev:            changeVariance,
			sortValue:            sortVal,
		}

		out[i] = &cubeRow{
			key:            p.seg.key,
			info:           info,
			weight:         p.weight,
			changeVal:      p.change,
			dimWeight:      dimWeight,
			changeVariance: changeVariance,
		}
	}
	return out
}

func sortValueOf(m metric.Metric, seg *rawSegment, mC, mB float64) float64 {
	if d, ok := m.(metric.Dual); ok {
		return math.Abs(seg.compC[d.Numerator.ID()] - seg.compB[d.Numerator.ID()])
	}
	return math.Abs(mC - mB)
}

func absoluteContributionSingle(globalB, globalC, segB, segC float64) float64 {
	if globalB == 0 {
		return 0
	}
	overallChange := (globalC - globalB) / globalB
	denomWithout := globalB - segB
	if denomWithout == 0 {
		return 0
	}
	without := ((globalC - segC) - (globalB - segB)) / denomWithout
	return overallChange - without
}

func absoluteContributionRatio(numB, denB, numC, denC, segNumB, segDenB, segNumC, segDenC float64) float64 {
	overallChange := metric.Ratio(numC, denC, true) - metric.Ratio(numB, denB, true)
	without := metric.Ratio(numC-segNumC, denC-segDenC, true) - metric.Ratio(numB-segNumB, denB-segDenB, true)
	return overallChange - without
}
