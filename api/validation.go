package api

import (
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupGinValidator registers driftlens's custom field validators with
// gin's bound validator engine, following the teacher's init-time
// registration pattern.
func SetupGinValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterValidation("iso_date", validateISODate)
	v.RegisterValidation("agg_method", validateAggMethod)
	v.RegisterValidation("filter_operator", validateFilterOperator)
}

// validateISODate checks a YYYY-MM-DD date string.
func validateISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse("2006-01-02", fl.Field().String())
	return err == nil
}

// validateAggMethod restricts a field to the engine's closed aggregation set.
func validateAggMethod(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "sum", "count", "distinct", "ratio":
		return true
	default:
		return false
	}
}

// validateFilterOperator restricts a field to the engine's closed filter-operator set.
func validateFilterOperator(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "eq", "neq", "empty", "non_empty":
		return true
	default:
		return false
	}
}
