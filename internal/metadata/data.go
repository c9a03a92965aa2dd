package metadata

import (
	"time"
)

type FetchEvent struct {
	fetchUrl    string
	httpStatus  int
	duration    time.Duration
	contentType string
	bytes       int64
	attempts    int
}

/*
runStats
  - Represents a terminal, derived summary of a completed run
  - Contains only aggregate counts and durations
  - Is computed by the scheduler after both passes terminate
  - Is recorded exactly once
  - Must not influence scheduling, retries, or termination
*/
type runStats struct {
	totalBooks     int
	totalArtifacts int
	totalErrors    int
	durationMs     int64
}

// ArtifactKind names what kind of file landed on disk.
type ArtifactKind string

const (
	ArtifactBook          ArtifactKind = "book"
	ArtifactArchiveMember ArtifactKind = "archive_member"
	ArtifactOptimized     ArtifactKind = "optimized"
	ArtifactCover         ArtifactKind = "cover"
)

/*
	ErrorCause is a closed, canonical classification used exclusively for
	observability (logging, reporting).

	Rules:
	 - ErrorCause MUST NOT influence control flow.
	 - ErrorCause MUST NOT be used for retry, continuation, or abort decisions.
	 - Pipeline packages MAY map their local errors to ErrorCause,
	   but MUST NOT invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown

  - The failure does not map cleanly to any known category.

# CauseNetworkFailure

  - Transport failure or a non-success answer from a mirror or the remote cache.
  - Probe timeouts, connection resets, 404 on a candidate URL.

# CauseContentInvalid

  - Bytes arrived but cannot be used.
  - Truncated or corrupt zip, undecodable cache object.

# CauseUnsafeContent

  - Content was rejected because unpacking it could escape the destination.
  - Zip entries with traversal components.

# CauseStorageFailure

  - Failure while persisting artifacts or provenance.
  - Disk full, permission errors, failed rename, catalog write errors.

# CauseInvariantViolation

  - A system-level invariant was violated.
  - No primary html record for a book, empty candidate list.
*/
const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CauseContentInvalid
	CauseUnsafeContent
	CauseStorageFailure
	CauseInvariantViolation
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseUnsafeContent:
		return "unsafe_content"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

type ErrorRecord struct {
	packageName string
	action      string
	cause       ErrorCause
	errorString string
	observedAt  time.Time
	attrs       []Attribute
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrBookID     AttributeKey = "book_id"
	AttrKind       AttributeKey = "kind"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrValidator  AttributeKey = "validator"
	AttrCandidates AttributeKey = "candidates"
	AttrSource     AttributeKey = "source"
)
