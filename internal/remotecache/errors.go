package remotecache

import (
	"fmt"

	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
)

type RemoteCacheErrorCause string

const (
	ErrCauseNetworkFailure RemoteCacheErrorCause = "network failure"
	ErrCauseDecodeFailure  RemoteCacheErrorCause = "decode failed"
	ErrCauseWriteFailure   RemoteCacheErrorCause = "write failed"
)

type RemoteCacheError struct {
	Message   string
	Retryable bool
	Cause     RemoteCacheErrorCause
}

func (e *RemoteCacheError) Error() string {
	return fmt.Sprintf("remote cache error: %s: %s", e.Cause, e.Message)
}

func (e *RemoteCacheError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RemoteCacheError) IsRetryable() bool {
	return e.Retryable
}

func mapRemoteCacheErrorToMetadataCause(err *RemoteCacheError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNetworkFailure:
		return metadata.CauseNetworkFailure
	case ErrCauseDecodeFailure:
		return metadata.CauseContentInvalid
	case ErrCauseWriteFailure:
		return metadata.CauseStorageFailure
	default:
		return metadata.CauseUnknown
	}
}
