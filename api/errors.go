package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"driftlens/engine"
	"driftlens/logging"
)

// Error codes returned in ErrorResponse.Code, matching spec.md §7's closed
// set of engine error kinds plus the request-boundary validation error.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeEmptyDataset  = "EMPTY_DATASET"
	ErrCodeInvalidSource = "INVALID_SOURCE"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// ErrorResponse is the standardized error envelope (SPEC_FULL.md §10.3).
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// SuccessResponse is the standardized success envelope.
type SuccessResponse struct {
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// SendError sends a standardized error response.
func SendError(c *gin.Context, status int, code, message string, details map[string]string) {
	response := ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}
	if requestID := c.GetString("request_id"); requestID != "" {
		response.RequestID = requestID
	}
	c.JSON(status, response)
}

// SendSuccess sends a standardized success response.
func SendSuccess(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, SuccessResponse{Data: data, Message: message})
}

// HandleValidationError reports a request-binding or struct-validation
// failure as HTTP 400.
func HandleValidationError(c *gin.Context, err error) {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		SendError(c, http.StatusBadRequest, ErrCodeValidation, "validation failed", details)
		return
	}
	SendError(c, http.StatusBadRequest, ErrCodeValidation, "invalid request", map[string]string{"error": err.Error()})
}

// HandleNotFoundError reports a missing resource (e.g. unknown file_id)
// as HTTP 404.
func HandleNotFoundError(c *gin.Context, resource string, id interface{}) {
	SendError(c, http.StatusNotFound, ErrCodeNotFound, resource+" not found",
		map[string]string{"resource": resource, "id": fmt.Sprintf("%v", id)})
}

// HandleEngineError maps an engine.Error's Kind to the HTTP status
// spec.md §7 assigns it, logging internal failures.
func HandleEngineError(c *gin.Context, logger *logging.Logger, err error) {
	engineErr, ok := err.(*engine.Error)
	if !ok {
		if logger != nil {
			logger.Error("unhandled engine error", map[string]interface{}{"error": err.Error()})
		}
		SendError(c, http.StatusInternalServerError, ErrCodeInternal, err.Error(), nil)
		return
	}

	switch engineErr.Kind {
	case engine.KindEmptyDataset:
		SendError(c, http.StatusBadRequest, ErrCodeEmptyDataset, "EMPTY_DATASET", nil)
	case engine.KindInvalidRequest:
		SendError(c, http.StatusBadRequest, ErrCodeValidation, engineErr.Message, nil)
	case engine.KindInvalidSource:
		SendError(c, http.StatusNotFound, ErrCodeInvalidSource, engineErr.Message, nil)
	default:
		if logger != nil {
			logger.Error("internal engine error", map[string]interface{}{"error": engineErr.Message})
		}
		SendError(c, http.StatusInternalServerError, ErrCodeInternal, engineErr.Message, nil)
	}
}

// RequestIDMiddleware assigns a request id (an incoming X-Request-ID
// header, or a fresh uuid) to every request.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
