package engine

import (
	"time"

	"driftlens/frame"
	"driftlens/metric"
)

// DateRange is an inclusive ISO-date window (spec.md §4.1).
type DateRange struct {
	From string
	To   string
}

func (r DateRange) validate(field string) error {
	if r.From == "" || r.To == "" {
		return ErrInvalidRequest(field + ": from/to are required")
	}
	if _, err := time.Parse("2006-01-02", r.From); err != nil {
		return ErrInvalidRequest(field + ".from: invalid ISO date")
	}
	if _, err := time.Parse("2006-01-02", r.To); err != nil {
		return ErrInvalidRequest(field + ".to: invalid ISO date")
	}
	if r.To < r.From {
		return ErrInvalidRequest(field + ": to precedes from")
	}
	return nil
}

// AnalysisRequest is the typed request the engine operates on (spec.md §4.1).
type AnalysisRequest struct {
	DateColumn      string
	DateColumnType  frame.DateColumnType
	BaselineRange   DateRange
	ComparisonRange DateRange
	Dimensions      []string
	Metric          metric.Metric
	Filters         []metric.Filter
	MaxDimensions   int
	ExpectedChange  float64
}

const defaultMaxDimensions = 3
const hardMaxDimensions = 4

// NewAnalysisRequest validates req in place, applying the default/cap on
// MaxDimensions (spec.md §4.1: default 3, cap 4), and returns
// ErrInvalidRequest for any malformed field.
func NewAnalysisRequest(req AnalysisRequest) (*AnalysisRequest, error) {
	if req.DateColumn == "" {
		return nil, ErrInvalidRequest("date_column is required")
	}
	if err := req.BaselineRange.validate("baseline_range"); err != nil {
		return nil, err
	}
	if err := req.ComparisonRange.validate("comparison_range"); err != nil {
		return nil, err
	}
	if len(req.Dimensions) == 0 {
		return nil, ErrInvalidRequest("dimensions: at least one is required")
	}
	if req.Metric == nil {
		return nil, ErrInvalidRequest("metric: is required")
	}
	if err := validateMetric(req.Metric); err != nil {
		return nil, err
	}

	if req.MaxDimensions == 0 {
		req.MaxDimensions = defaultMaxDimensions
	}
	if req.MaxDimensions < 1 || req.MaxDimensions > hardMaxDimensions {
		return nil, ErrInvalidRequest("max_dimensions: must be between 1 and 4")
	}

	if req.DateColumnType == "" {
		req.DateColumnType = frame.DateTypeDate
	}

	out := req
	return &out, nil
}

func validateMetric(m metric.Metric) error {
	switch t := m.(type) {
	case metric.Single:
		return validateAgg(t.Agg)
	case metric.Dual:
		if t.Name == "" {
			return ErrInvalidRequest("ratio metric: name is required")
		}
		if err := validateAgg(t.Numerator.Agg); err != nil {
			return err
		}
		return validateAgg(t.Denominator.Agg)
	default:
		return ErrInvalidRequest("metric: unknown metric type")
	}
}

func validateAgg(agg metric.AggregateMethod) error {
	switch agg {
	case metric.AggSum, metric.AggCount, metric.AggDistinct:
		return nil
	default:
		return ErrInvalidRequest("metric: unknown aggregation method " + string(agg))
	}
}
