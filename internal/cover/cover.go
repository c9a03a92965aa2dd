package cover

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/cache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
	"github.com/rohmanhakim/gutenberg-fetch/internal/fetcher"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/storage"
)

type Status int

const (
	StatusDownloaded Status = iota
	StatusRemoteHit
	// StatusSkipped: no cover in the catalog, or already on disk.
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusRemoteHit:
		return "remote-hit"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Outcome struct {
	BookID int
	Status Status
	URL    string
	Err    error
	// Fatal marks environment faults, such as a failed etag write.
	Fatal bool
}

// URL is the well-known medium cover of a book under imageBase.
func URL(imageBase string, bookID int) string {
	return fmt.Sprintf("%s/%d/pg%d.cover.medium.jpg", strings.TrimRight(imageBase, "/"), bookID, bookID)
}

// Fetcher runs the cache cascade for the single cover URL of a book.
type Fetcher struct {
	logger       *slog.Logger
	metadataSink metadata.MetadataSink
	store        catalog.Store
	fetcher      fetcher.Fetcher
	cascade      *cache.Cascade
	layout       storage.Layout
	imageBase    string
}

func NewFetcher(
	logger *slog.Logger,
	metadataSink metadata.MetadataSink,
	store catalog.Store,
	fetcher fetcher.Fetcher,
	cascade *cache.Cascade,
	layout storage.Layout,
	imageBase string,
) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		logger:       logger,
		metadataSink: metadataSink,
		store:        store,
		fetcher:      fetcher,
		cascade:      cascade,
		layout:       layout,
		imageBase:    imageBase,
	}
}

func (f *Fetcher) FetchCover(ctx context.Context, book catalog.Book) Outcome {
	logger := f.logger.With(slog.Int(string(metadata.AttrBookID), book.ID))
	if !book.HasCover {
		logger.Debug("no cover page in catalog")
		return Outcome{BookID: book.ID, Status: StatusSkipped}
	}

	target := f.layout.CoverTarget(book)
	if f.cascade.LocalHit(target) {
		logger.Debug("cover already present")
		return Outcome{BookID: book.ID, Status: StatusSkipped}
	}
	if err := f.layout.Prepare(book.ID); err != nil {
		f.recordError(book.ID, err)
		return Outcome{BookID: book.ID, Status: StatusFailed, Err: err, Fatal: true}
	}

	url := URL(f.imageBase, book.ID)
	lookup := f.cascade.Lookup(ctx, book, config.KindCover, url, target)
	switch lookup.Decision() {
	case cache.DecisionLocal:
		return Outcome{BookID: book.ID, Status: StatusSkipped, URL: url}
	case cache.DecisionRemote:
		return Outcome{BookID: book.ID, Status: StatusRemoteHit, URL: url}
	}

	res, err := f.fetcher.Download(ctx, url, target.Unoptimized())
	if err != nil {
		logger.Warn("cover download failed", slog.String(string(metadata.AttrURL), url), slog.String("error", err.Error()))
		return Outcome{BookID: book.ID, Status: StatusFailed, URL: url, Err: err}
	}
	f.metadataSink.RecordArtifact(metadata.ArtifactCover, res.Path(), []metadata.Attribute{
		metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(book.ID)),
		metadata.NewAttr(metadata.AttrURL, url),
	})

	validator := lookup.Validator()
	if validator == "" {
		validator = res.ETag()
	}
	if validator != "" {
		if err := f.store.SetEtag(ctx, book.ID, catalog.EtagCover, validator); err != nil {
			f.recordError(book.ID, err)
			return Outcome{BookID: book.ID, Status: StatusFailed, URL: url, Err: err, Fatal: true}
		}
	}
	return Outcome{BookID: book.ID, Status: StatusDownloaded, URL: url}
}

func (f *Fetcher) recordError(bookID int, err error) {
	f.metadataSink.RecordError(
		time.Now(),
		"cover",
		"Fetcher.FetchCover",
		metadata.CauseStorageFailure,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(bookID)),
			metadata.NewAttr(metadata.AttrKind, config.KindCover),
		},
	)
}
