package engine

import "math"

// ScoreDimensions implements spec.md §4.5: for each single dimension,
// a weighted relative-change dispersion score over its distinct values.
// singleDimRows must be the subset rows of cardinality 1 (dimWeight==1).
func ScoreDimensions(singleDimRows []*cubeRow, threshold float64) map[string]Dimension {
	byDimension := map[string][]*cubeRow{}
	for _, row := range singleDimRows {
		if row.dimWeight != 1 || len(row.key) != 1 {
			continue
		}
		name := row.key[0].Dimension
		byDimension[name] = append(byDimension[name], row)
	}

	scores := map[string]float64{}
	for name, rows := range byDimension {
		scores[name] = dimensionScore(rows)
	}

	meanScore := 0.0
	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		meanScore = sum / float64(len(scores))
	}

	gate := math.Max(threshold, meanScore)

	out := make(map[string]Dimension, len(scores))
	for name, score := range scores {
		out[name] = Dimension{Name: name, Score: score, IsKey: score > gate}
	}
	return out
}

// dimensionScore computes score_d for one dimension's distinct-value rows
// (spec.md §4.5): w_v, change_v, the weighted mean, then the weighted
// standard deviation of change_v around that mean. change_v uses the same
// zero-baseline sign fallback as the cube analyzer (changeOf). The mass behind w_v is
// the metric's own weight column (r.weight, already resolved by the cube
// analyzer via metric.WeightColumnID) — for a ratio metric that is the
// numerator's mass, not the ratio's value, matching
// DualColumnMetric.get_weight_column_name() in the Python original.
func dimensionScore(rows []*cubeRow) float64 {
	var totalMass float64
	for _, r := range rows {
		totalMass += r.weight
	}
	if totalMass == 0 {
		return 0
	}

	type weighted struct {
		w      float64
		change float64
	}
	values := make([]weighted, len(rows))
	var weightedMean float64
	for i, r := range rows {
		w := r.weight / totalMass
		change := changeOf(r.info.Comparison.Value, r.info.Baseline.Value)
		values[i] = weighted{w: w, change: change}
		weightedMean += w * change
	}

	var variance float64
	for _, v := range values {
		d := v.change - weightedMean
		variance += v.w * d * d
	}
	return math.Sqrt(variance)
}
