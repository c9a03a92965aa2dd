package hashutil_test

import (
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/rohmanhakim/gutenberg-fetch/pkg/hashutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"
)

func TestHashBytes_SHA256(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected string
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:     "simple string",
			data:     []byte("hello world"),
			expected: "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		},
		{
			name:     "longer text",
			data:     []byte("The quick brown fox jumps over the lazy dog"),
			expected: "d7a8fbb307d7809469ca9abcb0082e4f8d5651e46d3cdb762d02d0bf37c9e592",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := hashutil.HashBytes(tt.data, hashutil.HashAlgoSHA256)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestHashBytes_BLAKE3(t *testing.T) {
	data := []byte("Alice's Adventures in Wonderland")
	sum := blake3.Sum256(data)

	got, err := hashutil.HashBytes(data, hashutil.HashAlgoBLAKE3)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestHashBytes_UnsupportedAlgorithm(t *testing.T) {
	_, err := hashutil.HashBytes([]byte("x"), "md5")
	assert.ErrorContains(t, err, "unsupported hash algorithm")
}

func TestHashReader_MatchesHashBytes(t *testing.T) {
	content := strings.Repeat("Project Gutenberg ", 4096)

	for _, algo := range []hashutil.HashAlgo{hashutil.HashAlgoSHA256, hashutil.HashAlgoBLAKE3} {
		t.Run(string(algo), func(t *testing.T) {
			want, err := hashutil.HashBytes([]byte(content), algo)
			require.NoError(t, err)

			got, n, err := hashutil.HashReader(strings.NewReader(content), algo)
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Equal(t, int64(len(content)), n)
		})
	}
}

func TestNewWriter(t *testing.T) {
	w, err := hashutil.NewWriter(hashutil.HashAlgoBLAKE3)
	require.NoError(t, err)
	_, err = io.WriteString(w, "abc")
	require.NoError(t, err)

	want, _ := hashutil.HashBytes([]byte("abc"), hashutil.HashAlgoBLAKE3)
	assert.Equal(t, want, hex.EncodeToString(w.Sum(nil)))
}

func TestFingerprint(t *testing.T) {
	a := hashutil.Fingerprint(`"5d8a-5f1e2c3b"`)
	b := hashutil.Fingerprint(`"5d8a-5f1e2c3b"`)
	c := hashutil.Fingerprint(`"5d8a-5f1e2c3c"`)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
