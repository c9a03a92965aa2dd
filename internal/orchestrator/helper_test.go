package orchestrator_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/rohmanhakim/gutenberg-fetch/internal/archive"
	"github.com/rohmanhakim/gutenberg-fetch/internal/cache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/fetcher"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/orchestrator"
	"github.com/rohmanhakim/gutenberg-fetch/internal/remotecache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/storage"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
	"github.com/stretchr/testify/require"
)

// resource is what the fake origin serves for one URL.
type resource struct {
	body []byte
	etag string
	// hidden makes the existence probe fail while downloads still work
	hidden bool
	// broken makes downloads fail while the probe still succeeds
	broken bool
}

type fakeFetcher struct {
	mu         sync.Mutex
	resources  map[string]resource
	probes     []string
	validators []string
	downloads  []string
}

func newFakeFetcher(resources map[string]resource) *fakeFetcher {
	return &fakeFetcher{resources: resources}
}

func (f *fakeFetcher) Exists(ctx context.Context, url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, url)
	r, ok := f.resources[url]
	return ok && !r.hidden
}

func (f *fakeFetcher) Validator(ctx context.Context, url string) (string, failure.ClassifiedError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validators = append(f.validators, url)
	r, ok := f.resources[url]
	if !ok {
		return "", &fetcher.FetchError{Message: "no such url", Cause: fetcher.ErrCauseProbeFailure}
	}
	return r.etag, nil
}

func (f *fakeFetcher) Download(ctx context.Context, url string, dest string) (fetcher.DownloadResult, failure.ClassifiedError) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, url)
	r, ok := f.resources[url]
	if !ok || r.broken {
		return fetcher.DownloadResult{}, &fetcher.FetchError{Message: "404", Cause: fetcher.ErrCauseRequestClientError}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fetcher.DownloadResult{}, &fetcher.FetchError{Message: err.Error(), Cause: fetcher.ErrCauseWriteFailure}
	}
	if err := os.WriteFile(dest, r.body, 0o644); err != nil {
		return fetcher.DownloadResult{}, &fetcher.FetchError{Message: err.Error(), Cause: fetcher.ErrCauseWriteFailure}
	}
	return fetcher.NewDownloadResult(url, dest, r.etag, int64(len(r.body)), ""), nil
}

func (f *fakeFetcher) Probes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probes...)
}

func (f *fakeFetcher) Downloads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.downloads...)
}

func (f *fakeFetcher) NetworkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.probes) + len(f.validators) + len(f.downloads)
}

type fakeResolver struct {
	mu    sync.Mutex
	urls  map[string][]string
	calls int
}

func (r *fakeResolver) Resolve(ctx context.Context, book catalog.Book) (map[string][]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.urls, nil
}

func (r *fakeResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeRemote hits for the validators it knows and writes body into destDir.
type fakeRemote struct {
	hits map[string][]byte
}

func (r *fakeRemote) Fetch(ctx context.Context, book catalog.Book, validator string, kind string, destDir string) (bool, failure.ClassifiedError) {
	body, ok := r.hits[validator]
	if !ok {
		return false, nil
	}
	name := storage.GutenbergNamer{}.OptimizedName(book, kind)
	if err := os.WriteFile(filepath.Join(destDir, name), body, 0o644); err != nil {
		return false, &remotecache.RemoteCacheError{Message: err.Error(), Cause: remotecache.ErrCauseWriteFailure}
	}
	return true, nil
}

type env struct {
	store    *catalog.MemoryStore
	fetcher  *fakeFetcher
	resolver *fakeResolver
	remote   *fakeRemote
	layout   storage.Layout
	scratch  string
}

func newEnv(t *testing.T, resources map[string]resource, urls map[string][]string) *env {
	t.Helper()
	root := t.TempDir()
	return &env{
		store:    catalog.NewMemoryStore(),
		fetcher:  newFakeFetcher(resources),
		resolver: &fakeResolver{urls: urls},
		remote:   &fakeRemote{hits: map[string][]byte{}},
		layout:   storage.NewLayout(filepath.Join(root, "cache"), nil),
		scratch:  filepath.Join(root, "scratch"),
	}
}

func (e *env) orchestrator(store catalog.Store, param orchestrator.Param) *orchestrator.Orchestrator {
	noop := &metadata.NoopSink{}
	return orchestrator.New(
		nil,
		noop,
		store,
		e.resolver,
		e.fetcher,
		cache.NewCascade(noop, e.fetcher, e.remote, param.Force),
		archive.NewZipExtractor(noop, e.scratch),
		e.layout,
		param,
	)
}

func zipBytes(t *testing.T, members map[string]string) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, body := range members {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// failingStore refuses provenance writes.
type failingStore struct {
	catalog.Store
}

func (failingStore) SetSourceURL(ctx context.Context, recordID int64, sourceURL string) error {
	return &catalog.CatalogError{Message: "disk I/O error", Cause: catalog.ErrCauseWriteFailure}
}
