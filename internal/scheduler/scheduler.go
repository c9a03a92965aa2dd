package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
	"github.com/rohmanhakim/gutenberg-fetch/internal/cover"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/orchestrator"
	"golang.org/x/sync/errgroup"
)

type BookFetcher interface {
	FetchBook(ctx context.Context, book catalog.Book) orchestrator.BookOutcome
}

type CoverFetcher interface {
	FetchCover(ctx context.Context, book catalog.Book) cover.Outcome
}

/*
Scheduler runs the whole catalog selection through two bounded passes.

 - Pass one fetches book content, Concurrency books at a time.
 - Pass two fetches covers, CoverConcurrency books at a time, and starts
   only after pass one has fully completed.

Each book is handled by exactly one worker per pass; workers share only
the catalog store. A failing book never stops its siblings. Execute
returns an error after the run when any fatal failure was recorded, so
the operator is alerted while the report stays complete.

Cancelling ctx stops scheduling new books; in-flight books observe ctx
through their network calls.
*/
type Scheduler struct {
	logger       *slog.Logger
	metadataSink metadata.MetadataSink
	finalizer    metadata.RunFinalizer
	store        catalog.Store
	books        BookFetcher
	covers       CoverFetcher
	param        Param
	closers      []func() error
}

// NewSchedulerWithDeps creates a Scheduler from already wired components.
func NewSchedulerWithDeps(
	logger *slog.Logger,
	metadataSink metadata.MetadataSink,
	finalizer metadata.RunFinalizer,
	store catalog.Store,
	books BookFetcher,
	covers CoverFetcher,
	param Param,
) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if param.Concurrency < 1 {
		param.Concurrency = 1
	}
	if param.CoverConcurrency < 1 {
		param.CoverConcurrency = param.Concurrency
	}
	return &Scheduler{
		logger:       logger,
		metadataSink: metadataSink,
		finalizer:    finalizer,
		store:        store,
		books:        books,
		covers:       covers,
		param:        param,
	}
}

// Close releases resources opened by NewScheduler.
func (s *Scheduler) Close() error {
	var firstErr error
	for _, c := range s.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// Execute runs the book pass then the cover pass and reports the outcome.
func (s *Scheduler) Execute(ctx context.Context) (report Report, err error) {
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		s.finalizer.RecordFinalStats(report.Books, report.Artifacts(), report.Errors(), report.Duration)
	}()

	books, storeErr := s.store.Books(ctx, s.param.Filter)
	if storeErr != nil {
		s.metadataSink.RecordError(time.Now(), "scheduler", "Scheduler.Execute", metadata.CauseStorageFailure, storeErr.Error(), nil)
		return report, &SchedulerError{Message: storeErr.Error(), Cause: ErrCauseCatalogUnavailable}
	}
	report.Books = len(books)
	s.logger.Info("starting downloads", slog.Int("books", len(books)), slog.Int("concurrency", s.param.Concurrency))

	outcomes := runPass(ctx, books, s.param.Concurrency, s.books.FetchBook)
	s.logger.Info("book pass complete")

	var coverOutcomes []cover.Outcome
	if s.covers != nil {
		coverOutcomes = runPass(ctx, books, s.param.CoverConcurrency, s.covers.FetchCover)
		s.logger.Info("cover pass complete")
	}

	fatal := report.aggregate(outcomes, coverOutcomes)
	if fatal > 0 {
		return report, &SchedulerError{
			Message: fmt.Sprintf("%d book(s) hit an environment failure, see log", fatal),
			Cause:   ErrCauseFatalFailures,
			Count:   fatal,
		}
	}
	return report, nil
}

// runPass calls fn for every book with at most limit calls in flight.
// Books not yet started when ctx is done are skipped.
func runPass[T any](ctx context.Context, books []catalog.Book, limit int, fn func(context.Context, catalog.Book) T) []T {
	var mu sync.Mutex
	var g errgroup.Group
	results := make([]T, 0, len(books))
	g.SetLimit(limit)
	for _, book := range books {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out := fn(ctx, book)
			mu.Lock()
			results = append(results, out)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// aggregate folds outcomes into r and returns the number of fatal failures.
func (r *Report) aggregate(books []orchestrator.BookOutcome, covers []cover.Outcome) int {
	fatal := 0
	for _, b := range books {
		for _, k := range b.Kinds {
			switch k.Status {
			case orchestrator.StatusDownloaded:
				r.Downloaded++
			case orchestrator.StatusRemoteHit:
				r.RemoteHits++
			case orchestrator.StatusLocalSkip:
				r.LocalSkips++
			case orchestrator.StatusAbandoned:
				r.Abandoned = append(r.Abandoned, AbandonedKind{
					BookID:     b.BookID,
					Kind:       k.Kind,
					Reason:     k.Reason,
					Candidates: k.Candidates,
				})
			case orchestrator.StatusFailed:
				fatal++
				r.Failures = append(r.Failures, FailedKind{BookID: b.BookID, Kind: k.Kind, Reason: k.Reason, Err: k.Err})
			}
		}
	}
	for _, c := range covers {
		switch c.Status {
		case cover.StatusDownloaded:
			r.Covers.Downloaded++
		case cover.StatusRemoteHit:
			r.Covers.RemoteHits++
		case cover.StatusSkipped:
			r.Covers.Skipped++
		case cover.StatusFailed:
			r.Covers.Failed++
			if c.Fatal {
				fatal++
				r.Failures = append(r.Failures, FailedKind{BookID: c.BookID, Kind: config.KindCover, Reason: "cover failed", Err: c.Err})
			}
		}
	}

	sort.Slice(r.Abandoned, func(i, j int) bool {
		if r.Abandoned[i].BookID != r.Abandoned[j].BookID {
			return r.Abandoned[i].BookID < r.Abandoned[j].BookID
		}
		return r.Abandoned[i].Kind < r.Abandoned[j].Kind
	})
	sort.Slice(r.Failures, func(i, j int) bool {
		if r.Failures[i].BookID != r.Failures[j].BookID {
			return r.Failures[i].BookID < r.Failures[j].BookID
		}
		return r.Failures[i].Kind < r.Failures[j].Kind
	})
	return fatal
}
