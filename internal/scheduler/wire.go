package scheduler

import (
	"log/slog"
	"net/http"

	"github.com/rohmanhakim/gutenberg-fetch/internal/archive"
	"github.com/rohmanhakim/gutenberg-fetch/internal/cache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
	"github.com/rohmanhakim/gutenberg-fetch/internal/cover"
	"github.com/rohmanhakim/gutenberg-fetch/internal/fetcher"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/orchestrator"
	"github.com/rohmanhakim/gutenberg-fetch/internal/remotecache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/resolver"
	"github.com/rohmanhakim/gutenberg-fetch/internal/storage"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/fileutil"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/limiter"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/retry"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/timeutil"
	"golang.org/x/time/rate"
)

// NewScheduler wires the production components described by cfg.
// The caller must Close the returned Scheduler.
func NewScheduler(cfg config.Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	recorder := metadata.NewRecorder(logger)
	logger = logger.With(slog.String("run_id", recorder.RunID()))

	if err := fileutil.EnsureDir(cfg.CacheDir()); err != nil {
		return nil, err
	}

	store, err := catalog.OpenSQLStore(cfg.CatalogPath(), cfg.Concurrency()+1, logger)
	if err != nil {
		return nil, err
	}

	namer := storage.GutenbergNamer{}
	layout := storage.NewLayout(cfg.CacheDir(), namer)
	sink := storage.NewLocalSink(recorder)

	backoff := timeutil.NewBackoffParam(cfg.BackoffInitialDuration(), cfg.BackoffMultiplier(), cfg.BackoffMaxDuration())
	hostLimiter := limiter.NewConcurrentRateLimiter()
	hostLimiter.SetBaseDelay(cfg.BaseDelay())
	hostLimiter.SetJitter(cfg.Jitter())
	hostLimiter.SetRandomSeed(cfg.RandomSeed())
	hostLimiter.SetBackoffParam(backoff)

	var requestCap *rate.Limiter
	if rps := cfg.MaxRequestsPerSecond(); rps > 0 {
		requestCap = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}

	client := fetcher.NewClient(recorder, hostLimiter, &sink, fetcher.ClientParam{
		UserAgent:    cfg.UserAgent(),
		Timeout:      cfg.Timeout(),
		ProbeTimeout: cfg.ProbeTimeout(),
		RetryParam:   retry.NewRetryParam(cfg.Jitter(), cfg.RandomSeed(), cfg.MaxAttempt(), backoff),
		RateLimit:    requestCap,
	})

	var remote remotecache.Client = remotecache.Disabled{}
	if cfg.RemoteCache().Enabled() {
		remote = remotecache.NewHTTPCache(recorder, &sink, namer, &http.Client{Timeout: cfg.Timeout()}, cfg.RemoteCache())
	}

	cascade := cache.NewCascade(recorder, client, remote, cfg.Force())
	mirror := resolver.NewMirrorResolver(
		recorder,
		&http.Client{Timeout: cfg.ProbeTimeout()},
		cfg.MirrorURL(),
		cfg.ImageBaseURL(),
		cfg.UserAgent(),
		cfg.ListMirror(),
	)

	books := orchestrator.New(
		logger,
		recorder,
		store,
		mirror,
		client,
		cascade,
		archive.NewZipExtractor(recorder, cfg.ScratchDir()),
		layout,
		orchestrator.Param{
			Kinds:    config.RequestedKinds(cfg.Formats()),
			Force:    cfg.Force(),
			Patterns: cfg.HTMLPatterns(),
		},
	)
	covers := cover.NewFetcher(logger, recorder, store, client, cascade, layout, cfg.ImageBaseURL())

	s := NewSchedulerWithDeps(logger, recorder, recorder, store, books, covers, Param{
		Filter:           selectionFilter(cfg),
		Concurrency:      cfg.Concurrency(),
		CoverConcurrency: cfg.CoverConcurrency(),
	})
	s.closers = append(s.closers, store.Close)
	return s, nil
}

// selectionFilter keeps books in the requested languages that carry one
// of the requested formats.
func selectionFilter(cfg config.Config) catalog.Filter {
	filter := catalog.Filter{
		Languages: cfg.Languages(),
		OnlyBooks: cfg.OnlyBooks(),
	}
	for _, kind := range cfg.Formats() {
		if mime, ok := config.MimeFor(kind); ok {
			filter.Mimes = append(filter.Mimes, mime)
		}
	}
	return filter
}
