package catalog

import (
	"fmt"

	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
)

type CatalogErrorCause string

const (
	ErrCauseQueryFailure CatalogErrorCause = "query failure"
	ErrCauseWriteFailure CatalogErrorCause = "write failure"
	ErrCauseNotFound     CatalogErrorCause = "not found"
)

type CatalogError struct {
	Message   string
	Retryable bool
	Cause     CatalogErrorCause
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog error: %s, %s", e.Cause, e.Message)
}

func (e *CatalogError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// Is allows errors.Is to match CatalogError types
func (e *CatalogError) Is(target error) bool {
	t, ok := target.(*CatalogError)
	if !ok {
		return false
	}
	return t.Cause == "" || t.Cause == e.Cause
}
