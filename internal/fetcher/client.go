package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/storage"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/hashutil"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/limiter"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/retry"
)

const defaultProbeTimeout = 20 * time.Second

// Client is the HTTP implementation of Fetcher.
type Client struct {
	metadataSink metadata.MetadataSink
	hostLimiter  limiter.RateLimiter
	sink         storage.Sink
	param        ClientParam
	httpClient   *http.Client
}

func NewClient(
	metadataSink metadata.MetadataSink,
	hostLimiter limiter.RateLimiter,
	sink storage.Sink,
	param ClientParam,
) *Client {
	httpClient := param.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: param.Timeout}
	}
	if param.ProbeTimeout <= 0 {
		param.ProbeTimeout = defaultProbeTimeout
	}
	return &Client{
		metadataSink: metadataSink,
		hostLimiter:  hostLimiter,
		sink:         sink,
		param:        param,
		httpClient:   httpClient,
	}
}

// Exists issues a one-byte range request bounded by the probe timeout.
func (c *Client) Exists(ctx context.Context, rawURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.param.ProbeTimeout)
	defer cancel()

	start := time.Now()
	if err := c.wait(probeCtx, rawURL); err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}
	c.setRequestHeaders(req)
	req.Header.Set("Range", "bytes=0-0")

	resp, err := c.httpClient.Do(req)
	c.markFetched(rawURL)
	if err != nil {
		c.recordFetchError(rawURL, "Client.Exists", classifyTransportError(err, ErrCauseProbeFailure))
		return false
	}
	defer resp.Body.Close()

	c.metadataSink.RecordFetch(rawURL, resp.StatusCode, time.Since(start), resp.Header.Get("Content-Type"), 0, 1)
	return isSuccess(resp.StatusCode)
}

// Validator returns the ETag served for rawURL. An empty string means
// the server sent none.
func (c *Client) Validator(ctx context.Context, rawURL string) (string, failure.ClassifiedError) {
	probeCtx, cancel := context.WithTimeout(ctx, c.param.ProbeTimeout)
	defer cancel()

	start := time.Now()
	if err := c.wait(probeCtx, rawURL); err != nil {
		return "", &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseProbeFailure}
	}
	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		fetchErr := &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseProbeFailure}
		c.recordFetchError(rawURL, "Client.Validator", fetchErr)
		return "", fetchErr
	}
	c.setRequestHeaders(req)

	resp, err := c.httpClient.Do(req)
	c.markFetched(rawURL)
	if err != nil {
		fetchErr := classifyTransportError(err, ErrCauseProbeFailure)
		c.recordFetchError(rawURL, "Client.Validator", fetchErr)
		return "", fetchErr
	}
	defer resp.Body.Close()

	c.metadataSink.RecordFetch(rawURL, resp.StatusCode, time.Since(start), resp.Header.Get("Content-Type"), 0, 1)
	if !isSuccess(resp.StatusCode) {
		fetchErr := &FetchError{
			Message:   fmt.Sprintf("HEAD %s: status %d", rawURL, resp.StatusCode),
			Retryable: false,
			Cause:     ErrCauseProbeFailure,
		}
		c.recordFetchError(rawURL, "Client.Validator", fetchErr)
		return "", fetchErr
	}
	return resp.Header.Get("ETag"), nil
}

// Download stores the body of rawURL at dest. The file at dest is either
// the complete body or untouched.
func (c *Client) Download(
	ctx context.Context,
	rawURL string,
	dest string,
) (DownloadResult, failure.ClassifiedError) {
	start := time.Now()
	result := retry.Retry(ctx, c.param.RetryParam, func() (DownloadResult, failure.ClassifiedError) {
		return c.performDownload(ctx, rawURL, dest)
	})
	if result.IsFailure() {
		c.recordFetchError(rawURL, "Client.Download", result.Err())
		return DownloadResult{}, result.Err()
	}

	downloaded := result.Value()
	c.metadataSink.RecordFetch(rawURL, http.StatusOK, time.Since(start), "", downloaded.Bytes(), result.Attempts())
	return downloaded, nil
}

func (c *Client) performDownload(
	ctx context.Context,
	rawURL string,
	dest string,
) (DownloadResult, failure.ClassifiedError) {
	if err := c.wait(ctx, rawURL); err != nil {
		return DownloadResult{}, &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseNetworkFailure}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return DownloadResult{}, &FetchError{Message: err.Error(), Retryable: false, Cause: ErrCauseRequestClientError}
	}
	c.setRequestHeaders(req)

	resp, err := c.httpClient.Do(req)
	c.markFetched(rawURL)
	if err != nil {
		return DownloadResult{}, classifyTransportError(err, ErrCauseNetworkFailure)
	}
	defer resp.Body.Close()

	if fetchErr := c.classifyStatus(rawURL, resp); fetchErr != nil {
		return DownloadResult{}, fetchErr
	}
	c.resetBackoff(rawURL)

	written, storageErr := c.sink.WriteStream(dest, resp.Body, hashutil.HashAlgoBLAKE3)
	if storageErr != nil {
		var se *storage.StorageError
		if errors.As(storageErr, &se) && se.Cause == storage.ErrCauseReadFailure {
			return DownloadResult{}, &FetchError{
				Message:   se.Message,
				Retryable: true,
				Cause:     ErrCauseReadResponseBodyError,
			}
		}
		return DownloadResult{}, &FetchError{
			Message:   storageErr.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
		}
	}

	return NewDownloadResult(
		rawURL,
		written.Path(),
		resp.Header.Get("ETag"),
		written.Bytes(),
		written.ContentHash(),
	), nil
}

// classifyStatus turns a non-2xx response into a FetchError and feeds
// the host limiter.
func (c *Client) classifyStatus(rawURL string, resp *http.Response) *FetchError {
	code := resp.StatusCode
	switch {
	case isSuccess(code):
		return nil
	case code == http.StatusTooManyRequests:
		host := hostOf(rawURL)
		if c.hostLimiter != nil && host != "" {
			c.hostLimiter.Backoff(host)
			if delay, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
				c.hostLimiter.SetHostDelay(host, delay)
			}
		}
		return &FetchError{
			Message:   fmt.Sprintf("GET %s: status %d", rawURL, code),
			Retryable: true,
			Cause:     ErrCauseRequestTooMany,
		}
	case code >= 500:
		if host := hostOf(rawURL); c.hostLimiter != nil && host != "" {
			c.hostLimiter.Backoff(host)
		}
		return &FetchError{
			Message:   fmt.Sprintf("GET %s: status %d", rawURL, code),
			Retryable: true,
			Cause:     ErrCauseRequest5xx,
		}
	default:
		return &FetchError{
			Message:   fmt.Sprintf("GET %s: status %d", rawURL, code),
			Retryable: false,
			Cause:     ErrCauseRequestClientError,
		}
	}
}

func (c *Client) wait(ctx context.Context, rawURL string) error {
	if c.param.RateLimit != nil {
		if err := c.param.RateLimit.Wait(ctx); err != nil {
			return err
		}
	}
	if host := hostOf(rawURL); c.hostLimiter != nil && host != "" {
		return c.hostLimiter.Wait(ctx, host)
	}
	return nil
}

func (c *Client) markFetched(rawURL string) {
	if host := hostOf(rawURL); c.hostLimiter != nil && host != "" {
		c.hostLimiter.MarkLastFetchAsNow(host)
	}
}

func (c *Client) resetBackoff(rawURL string) {
	if host := hostOf(rawURL); c.hostLimiter != nil && host != "" {
		c.hostLimiter.ResetBackoff(host)
	}
}

func (c *Client) setRequestHeaders(req *http.Request) {
	if c.param.UserAgent != "" {
		req.Header.Set("User-Agent", c.param.UserAgent)
	}
	req.Header.Set("Accept", "*/*")
}

func (c *Client) recordFetchError(rawURL string, action string, err failure.ClassifiedError) {
	cause := metadata.CauseNetworkFailure
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		cause = mapFetchErrorToMetadataCause(fetchErr)
	}
	c.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		action,
		cause,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, rawURL),
			metadata.NewAttr(metadata.AttrHost, hostOf(rawURL)),
		},
	)
}

func classifyTransportError(err error, fallback FetchErrorCause) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Message: err.Error(), Retryable: true, Cause: ErrCauseTimeout}
	}
	if errors.Is(err, context.Canceled) {
		return &FetchError{Message: err.Error(), Retryable: false, Cause: fallback}
	}
	return &FetchError{Message: err.Error(), Retryable: true, Cause: fallback}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}
