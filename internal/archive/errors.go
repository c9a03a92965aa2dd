package archive

import (
	"fmt"

	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
)

type ArchiveErrorCause string

const (
	ErrCauseUnsafe         ArchiveErrorCause = "unsafe entry"
	ErrCauseMalformed      ArchiveErrorCause = "malformed archive"
	ErrCauseMoveFailure    ArchiveErrorCause = "move failed"
	ErrCauseScratchFailure ArchiveErrorCause = "scratch directory unavailable"
)

type ArchiveError struct {
	Message string
	Cause   ArchiveErrorCause
	// Entry is the offending member name, when one is known.
	Entry string
}

func (e *ArchiveError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("archive error: %s: %q: %s", e.Cause, e.Entry, e.Message)
	}
	return fmt.Sprintf("archive error: %s: %s", e.Cause, e.Message)
}

// Severity is fatal only when the environment is at fault. A rejected
// archive abandons one candidate, nothing more.
func (e *ArchiveError) Severity() failure.Severity {
	switch e.Cause {
	case ErrCauseMoveFailure, ErrCauseScratchFailure:
		return failure.SeverityFatal
	default:
		return failure.SeverityRecoverable
	}
}

// IsRetryable is always false: the same bytes give the same result.
func (e *ArchiveError) IsRetryable() bool {
	return false
}

func mapArchiveErrorToMetadataCause(err *ArchiveError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseUnsafe:
		return metadata.CauseUnsafeContent
	case ErrCauseMalformed:
		return metadata.CauseContentInvalid
	case ErrCauseMoveFailure, ErrCauseScratchFailure:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
