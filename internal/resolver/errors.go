package resolver

import (
	"fmt"

	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
)

type ResolverErrorCause string

const (
	ErrCauseListingFailure ResolverErrorCause = "mirror listing failed"
	ErrCauseInvalidBase    ResolverErrorCause = "invalid base url"
)

type ResolverError struct {
	Message   string
	Retryable bool
	Cause     ResolverErrorCause
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolver error: %s: %s", e.Cause, e.Message)
}

func (e *ResolverError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *ResolverError) IsRetryable() bool {
	return e.Retryable
}
