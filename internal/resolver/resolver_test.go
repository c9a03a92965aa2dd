package resolver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorDir(t *testing.T) {
	tests := []struct {
		id   int
		want string
	}{
		{7, "0/7"},
		{10, "1/10"},
		{123, "1/2/123"},
		{2701, "2/7/0/2701"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolver.MirrorDir(tt.id))
	}
}

func TestMirrorResolver_Templates(t *testing.T) {
	r := resolver.NewMirrorResolver(&metadata.NoopSink{}, nil,
		"http://aleph.gutenberg.org/", "http://aleph.gutenberg.org/cache/epub/", "", false)

	got, err := r.Resolve(context.Background(), catalog.Book{ID: 2701})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"http://aleph.gutenberg.org/2/7/0/2701/2701-h.zip",
		"http://aleph.gutenberg.org/2/7/0/2701/2701-h/2701-h.htm",
		"http://aleph.gutenberg.org/2/7/0/2701/2701-h.htm",
		"http://aleph.gutenberg.org/cache/epub/2701/pg2701-images.html",
	}, got[config.KindHTML])
	assert.Equal(t, "http://aleph.gutenberg.org/cache/epub/2701/pg2701-images.epub", got[config.KindEPUB][0])
	assert.Equal(t, "http://aleph.gutenberg.org/2/7/0/2701/2701-pdf.pdf", got[config.KindPDF][0])
}

func TestMirrorResolver_RejectsRelativeBase(t *testing.T) {
	r := resolver.NewMirrorResolver(&metadata.NoopSink{}, nil, "mirror/", "cache/", "", false)
	_, err := r.Resolve(context.Background(), catalog.Book{ID: 1})
	require.Error(t, err)
}

const listing = `<html><body><h1>Index of /1/2/123</h1>
<a href="?C=N;O=D">Name</a>
<a href="../">Parent Directory</a>
<a href="123-h.zip">123-h.zip</a>
<a href="123-0.htm">123-0.htm</a>
<a href="123.pdf">123.pdf</a>
<a href="123-h/">123-h/</a>
<a href="http://elsewhere.test/123.pdf">mirror</a>
</body></html>`

func TestMirrorResolver_Listing(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(listing))
	}))
	defer server.Close()

	r := resolver.NewMirrorResolver(&metadata.NoopSink{}, nil, server.URL, server.URL+"/cache/epub", "", true)
	got, err := r.Resolve(context.Background(), catalog.Book{ID: 123})
	require.NoError(t, err)
	assert.Equal(t, "/1/2/123/", gotPath)

	dir := server.URL + "/1/2/123/"
	assert.Equal(t, []string{
		dir + "123-h.zip",
		server.URL + "/cache/epub/123/pg123-images.html",
		dir + "123-0.htm",
	}, got[config.KindHTML])
	assert.Equal(t, []string{dir + "123.pdf"}, got[config.KindPDF])
	assert.Len(t, got[config.KindEPUB], 3)
}

func TestMirrorResolver_ListingFailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	r := resolver.NewMirrorResolver(&metadata.NoopSink{}, nil, server.URL, server.URL+"/cache/epub", "", true)
	got, err := r.Resolve(context.Background(), catalog.Book{ID: 123})
	require.NoError(t, err)
	assert.Len(t, got[config.KindHTML], 4)
	assert.Len(t, got[config.KindPDF], 2)
}
