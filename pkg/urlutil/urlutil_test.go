package urlutil

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "trailing slash removed",
			input:    "http://aleph.gutenberg.org/1/2/3/123/",
			expected: "http://aleph.gutenberg.org/1/2/3/123",
		},
		{
			name:     "fragment and query removed",
			input:    "http://aleph.gutenberg.org/1/2/3/123/123-h.zip?mirror=1#top",
			expected: "http://aleph.gutenberg.org/1/2/3/123/123-h.zip",
		},
		{
			name:     "scheme and host lowercased, path kept",
			input:    "HTTP://ALEPH.GUTENBERG.ORG/cache/epub/123/PG123.epub",
			expected: "http://aleph.gutenberg.org/cache/epub/123/PG123.epub",
		},
		{
			name:     "default http port removed",
			input:    "http://aleph.gutenberg.org:80/1/123",
			expected: "http://aleph.gutenberg.org/1/123",
		},
		{
			name:     "default https port removed",
			input:    "https://www.gutenberg.org:443/files/123/",
			expected: "https://www.gutenberg.org/files/123",
		},
		{
			name:     "non default port kept",
			input:    "http://localhost:8080/1/123/",
			expected: "http://localhost:8080/1/123",
		},
		{
			name:     "root path kept",
			input:    "http://aleph.gutenberg.org/",
			expected: "http://aleph.gutenberg.org/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := url.Parse(tt.input)
			require.NoError(t, err)

			result := Canonicalize(*input)
			assert.Equal(t, tt.expected, result.String())

			again := Canonicalize(result)
			assert.Equal(t, result.String(), again.String(), "must be idempotent")
		})
	}
}

func TestCanonicalizeDoesNotMutateInput(t *testing.T) {
	input, _ := url.Parse("HTTP://Example.com/path/?query=1#frag")
	original := input.String()

	_ = Canonicalize(*input)

	assert.Equal(t, original, input.String())
}

func TestCanonicalString(t *testing.T) {
	got, err := CanonicalString("HTTP://aleph.gutenberg.org/1/123/#x")
	require.NoError(t, err)
	assert.Equal(t, "http://aleph.gutenberg.org/1/123", got)

	_, err = CanonicalString("http://[::1")
	assert.Error(t, err)
}

func TestPathExt(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"http://aleph.gutenberg.org/1/2/123/123-h.zip", ".zip"},
		{"http://aleph.gutenberg.org/1/2/123/123-h/123-h.HTM", ".htm"},
		{"http://aleph.gutenberg.org/cache/epub/123/pg123-images.epub?x=1", ".epub"},
		{"http://aleph.gutenberg.org/cache/epub/123/pg123.cover.medium.jpg", ".jpg"},
		{"http://aleph.gutenberg.org/1/2/123/", ""},
		{"http://aleph.gutenberg.org/ebooks/123.txt.utf-8", ".utf-8"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, PathExt(tt.input))
		})
	}
}

func TestHasAnyExt(t *testing.T) {
	assert.True(t, HasAnyExt("http://x/123-h.zip", ".zip"))
	assert.True(t, HasAnyExt("http://x/123-h.HTML", ".htm", ".html"))
	assert.False(t, HasAnyExt("http://x/123.pdf", ".htm", ".html", ".epub"))
	assert.False(t, HasAnyExt("http://x/123", ".zip"))
}

func TestLowerASCII(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTPS", "https"},
		{"MixedCASE", "mixedcase"},
		{"already-lower", "already-lower"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, lowerASCII(tt.input))
		})
	}
}

func TestStripTrailingSlash(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/path/", "/path"},
		{"/path///", "/path"},
		{"/path", "/path"},
		{"/", "/"},
		{"///", "/"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripTrailingSlash(tt.input))
		})
	}
}
