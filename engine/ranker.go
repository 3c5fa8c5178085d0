package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"driftlens/frame"
	"driftlens/metric"
	"driftlens/stats"
)

// PruneAndOrder implements spec.md §4.4 steps 5 and 7: keep only segments
// covering more than minCoverage of the joined rows, sort by
// (dimension_weight desc, |sort| desc), cap at maxSegments, then re-sort
// by |sort| desc alone.
func PruneAndOrder(rows []*cubeRow, totalRowsAcrossPeriods, maxSegments int, minCoverage float64) []*cubeRow {
	kept := make([]*cubeRow, 0, len(rows))
	for _, r := range rows {
		if totalRowsAcrossPeriods == 0 {
			continue
		}
		coverage := float64(r.info.Baseline.Count+r.info.Comparison.Count) / float64(totalRowsAcrossPeriods)
		if coverage > minCoverage {
			kept = append(kept, r)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].dimWeight != kept[j].dimWeight {
			return kept[i].dimWeight > kept[j].dimWeight
		}
		return math.Abs(kept[i].info.sortValue) > math.Abs(kept[j].info.sortValue)
	})

	if len(kept) > maxSegments {
		kept = kept[:maxSegments]
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return math.Abs(kept[i].info.sortValue) > math.Abs(kept[j].info.sortValue)
	})

	return kept
}

// SelectTopDrivers implements spec.md §4.6's top-driver selection: rows
// whose dimension set is entirely within keyDimensions, in the current
// ordering, capped at maxTopDrivers.
func SelectTopDrivers(rows []*cubeRow, keyDimensions map[string]bool, maxTopDrivers int) []*cubeRow {
	out := make([]*cubeRow, 0, maxTopDrivers)
	for _, r := range rows {
		if !r.key.SubsetOf(keyDimensions) {
			continue
		}
		out = append(out, r)
		if len(out) >= maxTopDrivers {
			break
		}
	}
	return out
}

// segmentWhereClause renders the SQL conjunction selecting exactly the
// rows belonging to a segment's dimension=value predicates.
func segmentWhereClause(key SegmentKey) string {
	if len(key) == 0 {
		return "1=1"
	}
	parts := make([]string, len(key))
	for i, p := range key {
		parts[i] = fmt.Sprintf(`"%s" = '%s'`, strings.ReplaceAll(p.Dimension, `"`, `""`), strings.ReplaceAll(p.Value, "'", "''"))
	}
	return strings.Join(parts, " AND ")
}

// ApplySignificance implements spec.md §4.6's significance test: for each
// top driver, reconstruct a per-day vector of the segment's metric value
// in each period and run a two-sided one-sample t-test against 0 of the
// relative (or, for ratio metrics, absolute) differences between the i-th
// comparison day and the i-th baseline day.
func ApplySignificance(ctx context.Context, baseline, comparison frame.View, dateExpr string, m metric.Metric, topDrivers []*cubeRow) error {
	_, isDual := m.(metric.Dual)

	for _, row := range topDrivers {
		where := segmentWhereClause(row.key)
		bSeries, err := baseline.And(where).ValueByDate(ctx, dateExpr, m)
		if err != nil {
			return err
		}
		cSeries, err := comparison.And(where).ValueByDate(ctx, dateExpr, m)
		if err != nil {
			return err
		}

		n := len(bSeries)
		if len(cSeries) < n {
			n = len(cSeries)
		}
		if n == 0 {
			continue
		}

		diffs := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			c := cSeries[i].Value
			b := bSeries[i].Value
			if isDual {
				diffs = append(diffs, c-b)
				continue
			}
			if b == 0 {
				continue
			}
			rel := (c - b) / b * 100
			if math.IsInf(rel, 0) || math.IsNaN(rel) {
				continue
			}
			diffs = append(diffs, rel)
		}

		if float64(len(diffs)) <= float64(n)/2 {
			continue
		}

		result, ok := stats.OneSampleTTest(diffs)
		if !ok {
			continue
		}
		p := result.PValue
		row.info.Confidence = &p
	}
	return nil
}
