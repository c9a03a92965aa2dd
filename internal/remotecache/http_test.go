package remotecache_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/remotecache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/storage"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/hashutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mobyDick = catalog.Book{ID: 2701, Title: "Moby Dick; Or, The Whale"}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	encoder, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer encoder.Close()
	return encoder.EncodeAll(data, nil)
}

func newCache(t *testing.T, endpoint string) *remotecache.HTTPCache {
	t.Helper()
	noop := &metadata.NoopSink{}
	sink := storage.NewLocalSink(noop)
	return remotecache.NewHTTPCache(noop, &sink, nil, nil, config.RemoteCache{
		Endpoint:  endpoint,
		Bucket:    "optimized",
		AccessKey: "key",
		SecretKey: "secret",
	})
}

func TestHTTPCache_Hit(t *testing.T) {
	payload := []byte("optimized epub bytes")
	wantPath := "/optimized/epub/2701/" + hashutil.Fingerprint(`"etag-1"`) + ".zst"

	object := compress(t, payload)
	var gotPath, gotUser, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		w.Write(object)
	}))
	defer server.Close()

	destDir := t.TempDir()
	hit, err := newCache(t, server.URL+"/").Fetch(context.Background(), mobyDick, `"etag-1"`, config.KindEPUB, destDir)
	require.Nil(t, err)
	assert.True(t, hit)
	assert.Equal(t, wantPath, gotPath)
	assert.Equal(t, "key", gotUser)
	assert.Equal(t, "secret", gotPass)

	name := storage.GutenbergNamer{}.OptimizedName(mobyDick, config.KindEPUB)
	got, readErr := os.ReadFile(filepath.Join(destDir, name))
	require.NoError(t, readErr)
	assert.Equal(t, payload, got)
}

func TestHTTPCache_CoverUsesCoverName(t *testing.T) {
	object := compress(t, []byte("jpeg"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(object)
	}))
	defer server.Close()

	destDir := t.TempDir()
	hit, err := newCache(t, server.URL).Fetch(context.Background(), mobyDick, "v", config.KindCover, destDir)
	require.Nil(t, err)
	assert.True(t, hit)
	assert.FileExists(t, filepath.Join(destDir, "2701_cover.jpg"))
}

func TestHTTPCache_Miss(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	destDir := t.TempDir()
	hit, err := newCache(t, server.URL).Fetch(context.Background(), mobyDick, "v", config.KindHTML, destDir)
	require.Nil(t, err)
	assert.False(t, hit)

	entries, readErr := os.ReadDir(destDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestHTTPCache_EmptyValidatorSkipsLookup(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	hit, err := newCache(t, server.URL).Fetch(context.Background(), mobyDick, "", config.KindHTML, t.TempDir())
	require.Nil(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(0), calls.Load())
}

func TestHTTPCache_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		cause   remotecache.RemoteCacheErrorCause
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			cause: remotecache.ErrCauseNetworkFailure,
		},
		{
			name: "corrupt object",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("definitely not zstd"))
			},
			cause: remotecache.ErrCauseDecodeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			destDir := t.TempDir()
			hit, err := newCache(t, server.URL).Fetch(context.Background(), mobyDick, "v", config.KindHTML, destDir)
			require.NotNil(t, err)
			assert.False(t, hit)

			var cacheErr *remotecache.RemoteCacheError
			require.True(t, errors.As(err, &cacheErr))
			assert.Equal(t, tt.cause, cacheErr.Cause)

			entries, readErr := os.ReadDir(destDir)
			require.NoError(t, readErr)
			assert.Empty(t, entries, "a failed lookup must not leave files behind")
		})
	}
}

func TestDisabled(t *testing.T) {
	hit, err := remotecache.Disabled{}.Fetch(context.Background(), mobyDick, "v", config.KindHTML, t.TempDir())
	assert.Nil(t, err)
	assert.False(t, hit)
}
