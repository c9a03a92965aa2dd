package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/archive"
	"github.com/rohmanhakim/gutenberg-fetch/internal/cache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/candidate"
	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
	"github.com/rohmanhakim/gutenberg-fetch/internal/fetcher"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/resolver"
	"github.com/rohmanhakim/gutenberg-fetch/internal/storage"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/urlutil"
)

// Param carries the run-wide knobs of an Orchestrator.
type Param struct {
	// Kinds as returned by config.RequestedKinds.
	Kinds    []string
	Force    bool
	Patterns config.HTMLPatterns
}

/*
Orchestrator
Drives one book through every requested kind:

	SELECT_FORMAT → RESOLVE_CANDIDATES → TRY_URL… → EXTRACT | STORE → RECORD_PROVENANCE

Failures stay as narrow as possible: a failed candidate moves on to the
next one, an abandoned kind moves on to the next kind. Only environment
faults (moving extracted files, writing provenance) mark a kind failed.
*/
type Orchestrator struct {
	logger       *slog.Logger
	metadataSink metadata.MetadataSink
	store        catalog.Store
	resolver     resolver.Resolver
	fetcher      fetcher.Fetcher
	cascade      *cache.Cascade
	extractor    archive.Extractor
	layout       storage.Layout
	param        Param
}

func New(
	logger *slog.Logger,
	metadataSink metadata.MetadataSink,
	store catalog.Store,
	resolver resolver.Resolver,
	fetcher fetcher.Fetcher,
	cascade *cache.Cascade,
	extractor archive.Extractor,
	layout storage.Layout,
	param Param,
) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(param.Kinds) == 0 {
		param.Kinds = config.RequestedKinds(nil)
	}
	if len(param.Patterns) == 0 {
		param.Patterns = config.DefaultHTMLPatterns()
	}
	return &Orchestrator{
		logger:       logger,
		metadataSink: metadataSink,
		store:        store,
		resolver:     resolver,
		fetcher:      fetcher,
		cascade:      cascade,
		extractor:    extractor,
		layout:       layout,
		param:        param,
	}
}

// bookRun holds what is shared between the kinds of one book.
type bookRun struct {
	book    catalog.Book
	records []catalog.FormatRecord

	// the resolver is asked at most once per book
	resolved   map[string][]string
	resolveErr error
	asked      bool
}

func (o *Orchestrator) FetchBook(ctx context.Context, book catalog.Book) BookOutcome {
	outcome := BookOutcome{BookID: book.ID}
	logger := o.logger.With(slog.Int(string(metadata.AttrBookID), book.ID))
	logger.Info("downloading content files")

	records, err := o.store.FormatRecords(ctx, book.ID)
	if err != nil {
		o.recordError(book.ID, "", "FetchBook", metadata.CauseStorageFailure, err, nil)
		for _, kind := range o.param.Kinds {
			outcome.Kinds = append(outcome.Kinds, KindOutcome{
				Kind:   kind,
				Status: StatusAbandoned,
				Reason: "catalog query failed",
				Err:    err,
			})
		}
		return outcome
	}

	if prepErr := o.layout.Prepare(book.ID); prepErr != nil {
		o.recordError(book.ID, "", "FetchBook", metadata.CauseStorageFailure, prepErr, nil)
		for _, kind := range o.param.Kinds {
			outcome.Kinds = append(outcome.Kinds, KindOutcome{
				Kind:   kind,
				Status: StatusFailed,
				Reason: "book directory unavailable",
				Err:    prepErr,
			})
		}
		return outcome
	}

	run := &bookRun{book: book, records: records}
	for _, kind := range o.param.Kinds {
		if ctx.Err() != nil {
			outcome.Kinds = append(outcome.Kinds, KindOutcome{
				Kind:   kind,
				Status: StatusAbandoned,
				Reason: "cancelled",
				Err:    ctx.Err(),
			})
			continue
		}
		outcome.Kinds = append(outcome.Kinds, o.fetchKind(ctx, logger.With(slog.String(string(metadata.AttrKind), kind)), run, kind))
	}
	return outcome
}

func (o *Orchestrator) fetchKind(ctx context.Context, logger *slog.Logger, run *bookRun, kind string) KindOutcome {
	book := run.book

	// SELECT_FORMAT
	record, ok := selectFormat(book.ID, kind, run.records, o.param.Patterns)
	if !ok {
		if kind == config.KindHTML {
			logger.Error("html not found", slog.Any("available", formatTuples(run.records)))
		} else {
			logger.Debug("no format record for kind")
		}
		return KindOutcome{Kind: kind, Status: StatusAbandoned, Reason: "no eligible format record"}
	}

	target := o.layout.Target(book, kind)
	if o.cascade.LocalHit(target) {
		logger.Debug("target already present, skipping")
		return KindOutcome{Kind: kind, Status: StatusLocalSkip}
	}

	// RESOLVE_CANDIDATES
	var urls []string
	if record.SourceURL != "" && !o.param.Force {
		urls = []string{record.SourceURL}
	} else {
		resolved, err := o.resolve(ctx, run)
		if err != nil {
			o.recordError(book.ID, kind, "fetchKind", metadata.CauseNetworkFailure, err, nil)
			return KindOutcome{Kind: kind, Status: StatusAbandoned, Reason: "candidate resolution failed", Err: err}
		}
		urls = resolved[kind]
	}
	list := candidate.NewList(urls)

	// TRY_URL
	for {
		url, ok := list.Pop()
		if !ok {
			break
		}
		if list.NeedsProbe() && !o.fetcher.Exists(ctx, url) {
			logger.Debug("candidate does not exist", slog.String(string(metadata.AttrURL), url))
			continue
		}

		result, done := o.tryCandidate(ctx, logger, book, record, kind, url, target)
		if done {
			result.Candidates = list.All()
			return result
		}
	}

	// ABANDONED
	all := list.All()
	logger.Error("unable to fetch kind from any candidate", slog.Any(string(metadata.AttrCandidates), all))
	o.recordError(book.ID, kind, "fetchKind", metadata.CauseNetworkFailure,
		fmt.Errorf("all %d candidates failed", len(all)), nil)
	return KindOutcome{Kind: kind, Status: StatusAbandoned, Reason: "all candidates failed", Candidates: all}
}

func (o *Orchestrator) resolve(ctx context.Context, run *bookRun) (map[string][]string, error) {
	if !run.asked {
		run.resolved, run.resolveErr = o.resolver.Resolve(ctx, run.book)
		run.asked = true
	}
	return run.resolved, run.resolveErr
}

// tryCandidate returns done=false when the loop should move on to the
// next candidate.
func (o *Orchestrator) tryCandidate(
	ctx context.Context,
	logger *slog.Logger,
	book catalog.Book,
	record catalog.FormatRecord,
	kind string,
	url string,
	target storage.Target,
) (KindOutcome, bool) {
	logger = logger.With(slog.String(string(metadata.AttrURL), url))

	switch {
	case urlutil.PathExt(url) == ".zip":
		return o.tryArchive(ctx, logger, book, record, kind, url, target)
	case urlutil.HasAnyExt(url, ".htm", ".html", ".epub"):
		return o.tryDocument(ctx, logger, book, record, kind, url, target)
	default:
		res, err := o.fetcher.Download(ctx, url, target.Unoptimized())
		if err != nil {
			logger.Warn("download failed", slog.String("error", err.Error()))
			return KindOutcome{}, false
		}
		o.recordArtifact(book.ID, kind, res.Path(), url)
		return o.recordProvenance(ctx, book, record, kind, url, "")
	}
}

func (o *Orchestrator) tryArchive(
	ctx context.Context,
	logger *slog.Logger,
	book catalog.Book,
	record catalog.FormatRecord,
	kind string,
	url string,
	target storage.Target,
) (KindOutcome, bool) {
	lookup := o.cascade.Lookup(ctx, book, kind, url, target)
	if out, hit := cacheHit(kind, lookup); hit {
		return out, true
	}

	res, err := o.fetcher.Download(ctx, url, target.Archive())
	if err != nil {
		logger.Warn("download failed", slog.String("error", err.Error()))
		return KindOutcome{}, false
	}
	validator := firstNonEmpty(lookup.Validator(), res.ETag())
	if failed, stop := o.persistEtag(ctx, book, kind, validator); stop {
		return failed, true
	}

	if _, xErr := o.extractor.Extract(res.Path(), book.ID, o.layout.UnoptimizedDir(book.ID)); xErr != nil {
		if failure.IsFatal(xErr) {
			logger.Error("extraction failed", slog.String("error", xErr.Error()))
			return KindOutcome{
				Kind:      kind,
				Status:    StatusFailed,
				Reason:    "extraction failed",
				Validator: validator,
				Err:       xErr,
			}, true
		}
		logger.Warn("archive rejected", slog.String("error", xErr.Error()))
		return KindOutcome{}, false
	}
	return o.recordProvenance(ctx, book, record, kind, url, validator)
}

func (o *Orchestrator) tryDocument(
	ctx context.Context,
	logger *slog.Logger,
	book catalog.Book,
	record catalog.FormatRecord,
	kind string,
	url string,
	target storage.Target,
) (KindOutcome, bool) {
	lookup := o.cascade.Lookup(ctx, book, kind, url, target)
	if out, hit := cacheHit(kind, lookup); hit {
		return out, true
	}

	res, err := o.fetcher.Download(ctx, url, target.Unoptimized())
	if err != nil {
		logger.Warn("download failed", slog.String("error", err.Error()))
		return KindOutcome{}, false
	}
	o.recordArtifact(book.ID, kind, res.Path(), url)

	validator := firstNonEmpty(lookup.Validator(), res.ETag())
	if failed, stop := o.persistEtag(ctx, book, kind, validator); stop {
		return failed, true
	}
	return o.recordProvenance(ctx, book, record, kind, url, validator)
}

// persistEtag stores validator in the kind's etag column. stop is true
// when the write failed.
func (o *Orchestrator) persistEtag(ctx context.Context, book catalog.Book, kind string, validator string) (KindOutcome, bool) {
	field, ok := catalog.EtagFieldFor(kind)
	if !ok || validator == "" {
		return KindOutcome{}, false
	}
	if err := o.store.SetEtag(ctx, book.ID, field, validator); err != nil {
		o.recordError(book.ID, kind, "persistEtag", metadata.CauseStorageFailure, err,
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrField, string(field))})
		return KindOutcome{Kind: kind, Status: StatusFailed, Reason: "etag write failed", Validator: validator, Err: err}, true
	}
	return KindOutcome{}, false
}

// recordProvenance marks url as the source of the stored bytes.
func (o *Orchestrator) recordProvenance(
	ctx context.Context,
	book catalog.Book,
	record catalog.FormatRecord,
	kind string,
	url string,
	validator string,
) (KindOutcome, bool) {
	if err := o.store.SetSourceURL(ctx, record.ID, url); err != nil {
		o.recordError(book.ID, kind, "recordProvenance", metadata.CauseStorageFailure, err,
			[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, url)})
		return KindOutcome{Kind: kind, Status: StatusFailed, Reason: "source url write failed", Validator: validator, Err: err}, true
	}
	return KindOutcome{Kind: kind, Status: StatusDownloaded, SourceURL: url, Validator: validator}, true
}

func (o *Orchestrator) recordArtifact(bookID int, kind string, path string, url string) {
	o.metadataSink.RecordArtifact(metadata.ArtifactBook, path, []metadata.Attribute{
		metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(bookID)),
		metadata.NewAttr(metadata.AttrKind, kind),
		metadata.NewAttr(metadata.AttrURL, url),
	})
}

func (o *Orchestrator) recordError(bookID int, kind string, action string, cause metadata.ErrorCause, err error, extra []metadata.Attribute) {
	attrs := []metadata.Attribute{metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(bookID))}
	if kind != "" {
		attrs = append(attrs, metadata.NewAttr(metadata.AttrKind, kind))
	}
	o.metadataSink.RecordError(time.Now(), "orchestrator", action, cause, err.Error(), append(attrs, extra...))
}

func cacheHit(kind string, lookup cache.Lookup) (KindOutcome, bool) {
	switch lookup.Decision() {
	case cache.DecisionLocal:
		return KindOutcome{Kind: kind, Status: StatusLocalSkip}, true
	case cache.DecisionRemote:
		return KindOutcome{Kind: kind, Status: StatusRemoteHit, Validator: lookup.Validator()}, true
	default:
		return KindOutcome{}, false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
