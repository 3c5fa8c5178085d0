package engine

import "fmt"

// Kind is the engine's closed set of error categories (spec.md §7).
type Kind string

const (
	KindEmptyDataset   Kind = "EMPTY_DATASET"
	KindInvalidRequest Kind = "INVALID_REQUEST"
	KindInvalidSource  Kind = "INVALID_SOURCE"
	KindInternal       Kind = "INTERNAL"
)

// Error is the engine's error type; the HTTP layer maps Kind to a status
// code (400/404/500) without needing to inspect the message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrEmptyDataset reports the filtered frame (or one of its date windows)
// has zero rows (spec.md §4.2, §8 invariant 7).
func ErrEmptyDataset(detail string) *Error {
	return &Error{Kind: KindEmptyDataset, Message: detail}
}

// ErrInvalidRequest reports a malformed AnalysisRequest (spec.md §4.1).
func ErrInvalidRequest(detail string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: detail}
}

// ErrInternal wraps an unexpected failure inside the engine.
func ErrInternal(detail string) *Error {
	return &Error{Kind: KindInternal, Message: detail}
}
