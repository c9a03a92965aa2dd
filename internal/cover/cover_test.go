package cover_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/cache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/cover"
	"github.com/rohmanhakim/gutenberg-fetch/internal/fetcher"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/remotecache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/storage"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/limiter"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/retry"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type origin struct {
	server *httptest.Server
	gets   atomic.Int32
	heads  atomic.Int32
	status int
}

func newOrigin(t *testing.T, status int) *origin {
	t.Helper()
	o := &origin{status: status}
	o.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			o.heads.Add(1)
		} else {
			o.gets.Add(1)
		}
		if o.status != http.StatusOK {
			w.WriteHeader(o.status)
			return
		}
		w.Header().Set("ETag", `"cover-1"`)
		w.Write([]byte("jpeg bytes"))
	}))
	t.Cleanup(o.server.Close)
	return o
}

type fixture struct {
	store  *catalog.MemoryStore
	layout storage.Layout
	f      *cover.Fetcher
}

func newFixture(t *testing.T, imageBase string, remote remotecache.Client, force bool) fixture {
	t.Helper()
	noop := &metadata.NoopSink{}
	sink := storage.NewLocalSink(noop)
	client := fetcher.NewClient(noop, limiter.NewConcurrentRateLimiter(), &sink, fetcher.ClientParam{
		Timeout:    5 * time.Second,
		RetryParam: retry.NewRetryParam(0, 1, 1, timeutil.NewBackoffParam(time.Millisecond, 1, time.Millisecond)),
	})
	store := catalog.NewMemoryStore()
	layout := storage.NewLayout(t.TempDir(), nil)
	return fixture{
		store:  store,
		layout: layout,
		f: cover.NewFetcher(nil, noop, store, client,
			cache.NewCascade(noop, client, remote, force), layout, imageBase),
	}
}

var book = catalog.Book{ID: 84, Title: "Frankenstein", HasCover: true}

func TestURL(t *testing.T) {
	assert.Equal(t,
		"http://aleph.gutenberg.org/cache/epub/84/pg84.cover.medium.jpg",
		cover.URL("http://aleph.gutenberg.org/cache/epub/", 84))
}

func TestFetchCover_DownloadsAndPersistsValidator(t *testing.T) {
	o := newOrigin(t, http.StatusOK)
	fx := newFixture(t, o.server.URL+"/cache/epub/", nil, false)
	fx.store.PutBook(book)

	out := fx.f.FetchCover(context.Background(), book)
	require.NoError(t, out.Err)
	assert.Equal(t, cover.StatusDownloaded, out.Status)

	body, err := os.ReadFile(filepath.Join(fx.layout.UnoptimizedDir(84), "84_cover.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(body))

	stored, err := fx.store.Book(context.Background(), 84)
	require.NoError(t, err)
	assert.Equal(t, `"cover-1"`, stored.CoverEtag)
}

func TestFetchCover_NoCoverIsSkipped(t *testing.T) {
	o := newOrigin(t, http.StatusOK)
	fx := newFixture(t, o.server.URL, nil, false)
	plain := catalog.Book{ID: 85, Title: "No Art"}
	fx.store.PutBook(plain)

	out := fx.f.FetchCover(context.Background(), plain)
	assert.Equal(t, cover.StatusSkipped, out.Status)
	assert.Equal(t, int32(0), o.gets.Load()+o.heads.Load())
}

func TestFetchCover_PresentCoverIsSkipped(t *testing.T) {
	for _, dir := range []string{storage.UnoptimizedDirName, storage.OptimizedDirName} {
		t.Run(dir, func(t *testing.T) {
			o := newOrigin(t, http.StatusOK)
			fx := newFixture(t, o.server.URL, nil, false)
			fx.store.PutBook(book)
			path := filepath.Join(fx.layout.BookDir(84), dir, "84_cover.jpg")
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

			out := fx.f.FetchCover(context.Background(), book)
			assert.Equal(t, cover.StatusSkipped, out.Status)
			assert.Equal(t, int32(0), o.gets.Load()+o.heads.Load())
		})
	}
}

type hitRemote struct {
	validator string
	kind      string
}

func (h *hitRemote) Fetch(ctx context.Context, b catalog.Book, validator string, kind string, destDir string) (bool, failure.ClassifiedError) {
	h.validator = validator
	h.kind = kind
	return true, nil
}

func TestFetchCover_RemoteHitSkipsDownload(t *testing.T) {
	o := newOrigin(t, http.StatusOK)
	remote := &hitRemote{}
	fx := newFixture(t, o.server.URL, remote, false)
	fx.store.PutBook(book)

	out := fx.f.FetchCover(context.Background(), book)
	assert.Equal(t, cover.StatusRemoteHit, out.Status)
	assert.Equal(t, `"cover-1"`, remote.validator)
	assert.Equal(t, "cover", remote.kind)
	assert.Equal(t, int32(1), o.heads.Load())
	assert.Equal(t, int32(0), o.gets.Load())
}

func TestFetchCover_MissingCoverFailsWithoutFatal(t *testing.T) {
	o := newOrigin(t, http.StatusNotFound)
	fx := newFixture(t, o.server.URL, nil, false)
	fx.store.PutBook(book)

	out := fx.f.FetchCover(context.Background(), book)
	assert.Equal(t, cover.StatusFailed, out.Status)
	assert.False(t, out.Fatal)
	assert.NoFileExists(t, filepath.Join(fx.layout.UnoptimizedDir(84), "84_cover.jpg"))
}
