package metadata_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONRecorder(t *testing.T) (*metadata.Recorder, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return metadata.NewRecorder(logger), buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestRecorder_RecordError(t *testing.T) {
	rec, buf := newJSONRecorder(t)

	rec.RecordError(
		time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		"orchestrator",
		"Orchestrator.FetchBook",
		metadata.CauseUnsafeContent,
		"archive error: unsafe",
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrBookID, "1234"),
			metadata.NewAttr(metadata.AttrKind, "html"),
		},
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "orchestrator", line["package"])
	assert.Equal(t, "unsafe_content", line["cause"])
	assert.Equal(t, "1234", line["book_id"])
	assert.Equal(t, "html", line["kind"])
	assert.Equal(t, rec.RunID(), line["run_id"])
}

func TestRecorder_RecordFetchAndArtifact(t *testing.T) {
	rec, buf := newJSONRecorder(t)

	rec.RecordFetch("http://aleph.gutenberg.org/1/2/3/123/123-h.zip", 200, 150*time.Millisecond, "application/zip", 2048, 2)
	rec.RecordArtifact(metadata.ArtifactBook, "/cache/123/unoptimized/123.html", []metadata.Attribute{
		metadata.NewAttr(metadata.AttrBookID, "123"),
	})
	rec.RecordFinalStats(10, 25, 1, 3*time.Second)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "fetch", lines[0]["msg"])
	assert.EqualValues(t, 200, lines[0]["http_status"])
	assert.EqualValues(t, 2048, lines[0]["bytes"])
	assert.EqualValues(t, 2, lines[0]["attempts"])

	assert.Equal(t, "artifact", lines[1]["msg"])
	assert.Equal(t, "book", lines[1]["artifact"])
	assert.Equal(t, "/cache/123/unoptimized/123.html", lines[1]["path"])

	assert.Equal(t, "run finished", lines[2]["msg"])
	assert.EqualValues(t, 10, lines[2]["books"])
	assert.EqualValues(t, 3000, lines[2]["duration_ms"])
}

func TestRecorder_DistinctRunIDs(t *testing.T) {
	a := metadata.NewRecorder(nil)
	b := metadata.NewRecorder(nil)

	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())

	// nil logger discards without panicking
	a.RecordError(time.Now(), "p", "a", metadata.CauseUnknown, errors.New("x").Error(), nil)
}

func TestErrorCause_String(t *testing.T) {
	tests := map[metadata.ErrorCause]string{
		metadata.CauseUnknown:            "unknown",
		metadata.CauseNetworkFailure:     "network_failure",
		metadata.CauseContentInvalid:     "content_invalid",
		metadata.CauseUnsafeContent:      "unsafe_content",
		metadata.CauseStorageFailure:     "storage_failure",
		metadata.CauseInvariantViolation: "invariant_violation",
	}
	for cause, want := range tests {
		assert.Equal(t, want, cause.String())
	}
}

func TestSinksSatisfyInterfaces(t *testing.T) {
	var _ metadata.MetadataSink = &metadata.Recorder{}
	var _ metadata.MetadataSink = &metadata.NoopSink{}
	var _ metadata.RunFinalizer = &metadata.Recorder{}
	var _ metadata.RunFinalizer = &metadata.NoopSink{}
}
