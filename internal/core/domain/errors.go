package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSampleSize = errors.New("sample size must be at least 1")
	ErrSourceUnavailable = errors.New("data source unavailable")
	ErrSourceQueryFailed = errors.New("data source query failed")
	ErrUnsupportedMode   = errors.New("unsupported analysis mode")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
)

// AnalysisError carries the request context of a failed analysis so the
// shell can render which collection and mode failed and why.
type AnalysisError struct {
	Ref  CollectionRef
	Mode Mode
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analyzing %s (mode %q): %v", e.Ref, e.Mode, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Kind returns the stable error code of the cause.
func (e *AnalysisError) Kind() string { return ErrorKind(e.Err) }

// ErrorKind maps an error chain to a stable, machine-readable code.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedMode):
		return "unsupported_mode"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrInvalidSampleSize):
		return "invalid_sample_size"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrSourceQueryFailed):
		return "source_query_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
