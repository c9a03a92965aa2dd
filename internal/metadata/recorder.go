package metadata

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

/*
Metadata Collected
- Fetch timestamps, HTTP status codes, byte counts
- Artifact paths per book and kind
- Failures with enough context to re-run a single book

Metadata is write-only.
No component may read metadata to influence fetch decisions.
*/

/*
Recorder writes structured run events to a slog.Logger.
It must not:
- perform I/O decisions
- affect control flow
Ordering guarantees:
- Events are recorded synchronously in the order they are received by a single worker.
- No global ordering across workers is guaranteed.
*/
type Recorder struct {
	logger *slog.Logger
	runID  string
}

// NewRecorder tags every event with a fresh run identifier.
// A nil logger discards everything.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runID := uuid.NewString()
	return &Recorder{
		logger: logger.With("run_id", runID),
		runID:  runID,
	}
}

func (r *Recorder) RunID() string {
	return r.runID
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
	record := ErrorRecord{
		packageName: packageName,
		action:      action,
		cause:       cause,
		errorString: errorString,
		observedAt:  observedAt,
		attrs:       attrs,
	}
	args := []slog.Attr{
		slog.String("package", record.packageName),
		slog.String("action", record.action),
		slog.String("cause", record.cause.String()),
		slog.String("error", record.errorString),
		slog.Time("observed_at", record.observedAt),
	}
	args = append(args, toSlogAttrs(record.attrs)...)
	r.logger.LogAttrs(context.Background(), slog.LevelWarn, "error", args...)
}

func (r *Recorder) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	bytes int64,
	attempts int,
) {
	event := FetchEvent{
		fetchUrl:    fetchUrl,
		httpStatus:  httpStatus,
		duration:    duration,
		contentType: contentType,
		bytes:       bytes,
		attempts:    attempts,
	}
	r.logger.LogAttrs(context.Background(), slog.LevelDebug, "fetch",
		slog.String(string(AttrURL), event.fetchUrl),
		slog.Int(string(AttrHTTPStatus), event.httpStatus),
		slog.Duration("duration", event.duration),
		slog.String("content_type", event.contentType),
		slog.Int64("bytes", event.bytes),
		slog.Int("attempts", event.attempts),
	)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	args := []slog.Attr{
		slog.String("artifact", string(kind)),
		slog.String(string(AttrPath), path),
	}
	args = append(args, toSlogAttrs(attrs)...)
	r.logger.LogAttrs(context.Background(), slog.LevelInfo, "artifact", args...)
}

/*
RecordFinalStats records a terminal, derived summary of a completed run.

Contract:
  - MUST be called exactly once per run, after the cover pass terminates.
  - The stats MUST be derived from scheduler state.
  - Recorded stats MUST NOT influence control flow.
*/
func (r *Recorder) RecordFinalStats(
	totalBooks int,
	totalArtifacts int,
	totalErrors int,
	duration time.Duration,
) {
	stats := runStats{
		totalBooks:     totalBooks,
		totalArtifacts: totalArtifacts,
		totalErrors:    totalErrors,
		durationMs:     duration.Milliseconds(),
	}
	r.logger.LogAttrs(context.Background(), slog.LevelInfo, "run finished",
		slog.Int("books", stats.totalBooks),
		slog.Int("artifacts", stats.totalArtifacts),
		slog.Int("errors", stats.totalErrors),
		slog.Int64("duration_ms", stats.durationMs),
	)
}

func toSlogAttrs(attrs []Attribute) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, slog.String(string(a.Key), a.Value))
	}
	return out
}

type MetadataSink interface {
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)

	RecordFetch(
		fetchUrl string,
		httpStatus int,
		duration time.Duration,
		contentType string,
		bytes int64,
		attempts int,
	)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
}

type RunFinalizer interface {
	RecordFinalStats(
		totalBooks int,
		totalArtifacts int,
		totalErrors int,
		duration time.Duration,
	)
}

// NoopSink, struct that implements metadata.Sink but does nothing
// Scheduler (or Test) can decide whether to inject Recorder or NoopSink
// Purpose is to make metadata orthogonal
type NoopSink struct{}

func (n *NoopSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
}

func (n *NoopSink) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	bytes int64,
	attempts int,
) {
}

func (n *NoopSink) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {}

func (n *NoopSink) RecordFinalStats(totalBooks int, totalArtifacts int, totalErrors int, duration time.Duration) {
}
