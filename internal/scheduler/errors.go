package scheduler

import (
	"fmt"

	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
)

type SchedulerErrorCause string

const (
	ErrCauseCatalogUnavailable SchedulerErrorCause = "catalog unavailable"
	ErrCauseFatalFailures      SchedulerErrorCause = "fatal failures during run"
)

// SchedulerError is returned by Execute. With ErrCauseFatalFailures the
// run still completed and the report is complete.
type SchedulerError struct {
	Message string
	Cause   SchedulerErrorCause
	Count   int
}

func (e *SchedulerError) Error() string {
	if e.Count > 0 {
		return fmt.Sprintf("scheduler error: %s (%d): %s", e.Cause, e.Count, e.Message)
	}
	return fmt.Sprintf("scheduler error: %s: %s", e.Cause, e.Message)
}

func (e *SchedulerError) Severity() failure.Severity {
	return failure.SeverityFatal
}
