package fetcher

import (
	"net/http"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/pkg/retry"
	"golang.org/x/time/rate"
)

// DownloadResult describes bytes fetched from a URL and stored at a path.
type DownloadResult struct {
	url         string
	path        string
	etag        string
	bytes       int64
	contentHash string
}

func NewDownloadResult(
	url string,
	path string,
	etag string,
	bytes int64,
	contentHash string,
) DownloadResult {
	return DownloadResult{
		url:         url,
		path:        path,
		etag:        etag,
		bytes:       bytes,
		contentHash: contentHash,
	}
}

func (d DownloadResult) URL() string {
	return d.url
}

func (d DownloadResult) Path() string {
	return d.path
}

// ETag is the validator sent with the successful response, if any.
func (d DownloadResult) ETag() string {
	return d.etag
}

func (d DownloadResult) Bytes() int64 {
	return d.bytes
}

// ContentHash is the BLAKE3 digest of the stored bytes.
func (d DownloadResult) ContentHash() string {
	return d.contentHash
}

// ClientParam configures a Client.
type ClientParam struct {
	UserAgent    string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	RetryParam   retry.RetryParam
	// RateLimit caps requests across every worker. Nil disables the cap.
	RateLimit *rate.Limiter
	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client
}
