package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingleIDDerivesFromColumnAndAgg(t *testing.T) {
	m := Single{Column: "revenue", Agg: AggSum}
	assert.Equal(t, "revenue_sum", m.ID())
}

func TestSingleIDAppendsFilterHashWhenFiltered(t *testing.T) {
	plain := Single{Column: "revenue", Agg: AggSum}
	filtered := Single{Column: "revenue", Agg: AggSum, Filter: []Filter{{Column: "device", Operator: OpEQ, Values: []string{"ios"}}}}

	assert.NotEqual(t, plain.ID(), filtered.ID())
	assert.Len(t, filtered.ID(), len(plain.ID())+7)
}

func TestSingleIDStableRegardlessOfFilterOrder(t *testing.T) {
	a := Single{Column: "revenue", Agg: AggSum, Filter: []Filter{
		{Column: "device", Operator: OpEQ, Values: []string{"ios"}},
		{Column: "country", Operator: OpEQ, Values: []string{"US"}},
	}}
	b := Single{Column: "revenue", Agg: AggSum, Filter: []Filter{
		{Column: "country", Operator: OpEQ, Values: []string{"US"}},
		{Column: "device", Operator: OpEQ, Values: []string{"ios"}},
	}}
	assert.Equal(t, a.ID(), b.ID())
}

func TestDualIDIsUserSupplied(t *testing.T) {
	d := Dual{
		Name:        "conversion_rate",
		Numerator:   Single{Column: "orders", Agg: AggSum},
		Denominator: Single{Column: "visits", Agg: AggSum},
	}
	assert.Equal(t, "conversion_rate", d.ID())
}

func TestWeightColumnIDUsesNumeratorForDual(t *testing.T) {
	d := Dual{
		Name:        "conversion_rate",
		Numerator:   Single{Column: "orders", Agg: AggSum},
		Denominator: Single{Column: "visits", Agg: AggSum},
	}
	assert.Equal(t, d.Numerator.ID(), WeightColumnID(d))

	s := Single{Column: "revenue", Agg: AggSum}
	assert.Equal(t, s.ID(), WeightColumnID(s))
}

func TestRatioFallsBackToZeroOnInvalidDenominator(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(10, 0, true))
	assert.Equal(t, 0.0, Ratio(10, 5, false))
	assert.Equal(t, 2.0, Ratio(10, 5, true))
}

func TestFilterSQLRendersOperators(t *testing.T) {
	eq := Filter{Column: "device", Operator: OpEQ, Values: []string{"ios"}}
	assert.Contains(t, eq.SQL(), "IN ('ios')")

	empty := Filter{Column: "device", Operator: OpEmpty}
	assert.Contains(t, empty.SQL(), "IS NULL")
}

func TestSingleAggExprAppliesFilterAsCaseGuard(t *testing.T) {
	m := Single{Column: "revenue", Agg: AggSum, Filter: []Filter{{Column: "device", Operator: OpEQ, Values: []string{"ios"}}}}
	expr := m.AggExpr("revenue_sum")
	assert.Contains(t, expr, "CASE WHEN")
	assert.Contains(t, expr, "SUM(")
}
