package scheduler

import (
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
)

// Param holds the run-wide knobs of a Scheduler.
type Param struct {
	Filter           catalog.Filter
	Concurrency      int
	CoverConcurrency int
}

type AbandonedKind struct {
	BookID     int
	Kind       string
	Reason     string
	Candidates []string
}

type FailedKind struct {
	BookID int
	Kind   string
	Reason string
	Err    error
}

type CoverStats struct {
	Downloaded int
	RemoteHits int
	Skipped    int
	Failed     int
}

// Report aggregates the outcomes of one run. Abandoned and Failures are
// sorted by book id, then kind.
type Report struct {
	Books      int
	Downloaded int
	RemoteHits int
	LocalSkips int
	Abandoned  []AbandonedKind
	Failures   []FailedKind
	Covers     CoverStats
	Duration   time.Duration
}

// Artifacts counts the kinds and covers that landed on disk during the run.
func (r Report) Artifacts() int {
	return r.Downloaded + r.RemoteHits + r.Covers.Downloaded + r.Covers.RemoteHits
}

// Errors counts every abandoned or failed unit of work.
func (r Report) Errors() int {
	return len(r.Abandoned) + len(r.Failures) + r.Covers.Failed
}
