package remotecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/storage"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/hashutil"
)

// HTTPCache reads zstd-compressed objects laid out as
//
//	{endpoint}/{bucket}/{kind}/{bookID}/{fingerprint}.zst
//
// where fingerprint is hashutil.Fingerprint of the origin validator.
type HTTPCache struct {
	metadataSink metadata.MetadataSink
	sink         storage.Sink
	namer        storage.Namer
	httpClient   *http.Client
	endpoint     string
	bucket       string
	accessKey    string
	secretKey    string
}

func NewHTTPCache(
	metadataSink metadata.MetadataSink,
	sink storage.Sink,
	namer storage.Namer,
	httpClient *http.Client,
	remote config.RemoteCache,
) *HTTPCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if namer == nil {
		namer = storage.GutenbergNamer{}
	}
	return &HTTPCache{
		metadataSink: metadataSink,
		sink:         sink,
		namer:        namer,
		httpClient:   httpClient,
		endpoint:     strings.TrimRight(remote.Endpoint, "/"),
		bucket:       remote.Bucket,
		accessKey:    remote.AccessKey,
		secretKey:    remote.SecretKey,
	}
}

// ObjectURL is where the artifact for (bookID, kind, validator) lives.
func (c *HTTPCache) ObjectURL(bookID int, kind string, validator string) string {
	return fmt.Sprintf("%s/%s/%s/%d/%s.zst",
		c.endpoint,
		url.PathEscape(c.bucket),
		url.PathEscape(kind),
		bookID,
		hashutil.Fingerprint(validator),
	)
}

func (c *HTTPCache) Fetch(
	ctx context.Context,
	book catalog.Book,
	validator string,
	kind string,
	destDir string,
) (bool, failure.ClassifiedError) {
	// without a validator there is no key to look up
	if validator == "" {
		return false, nil
	}

	start := time.Now()
	objectURL := c.ObjectURL(book.ID, kind, validator)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, objectURL, nil)
	if err != nil {
		return false, c.fail(book, kind, &RemoteCacheError{Message: err.Error(), Cause: ErrCauseNetworkFailure})
	}
	if c.accessKey != "" || c.secretKey != "" {
		req.SetBasicAuth(c.accessKey, c.secretKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, c.fail(book, kind, &RemoteCacheError{Message: err.Error(), Retryable: true, Cause: ErrCauseNetworkFailure})
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.metadataSink.RecordFetch(objectURL, resp.StatusCode, time.Since(start), resp.Header.Get("Content-Type"), 0, 1)
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return false, c.fail(book, kind, &RemoteCacheError{
			Message:   fmt.Sprintf("GET %s: status %d", objectURL, resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
			Cause:     ErrCauseNetworkFailure,
		})
	}

	decoder, err := zstd.NewReader(resp.Body, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return false, c.fail(book, kind, &RemoteCacheError{Message: err.Error(), Cause: ErrCauseDecodeFailure})
	}
	defer decoder.Close()

	dest := filepath.Join(destDir, c.artifactName(book, kind))
	written, writeErr := c.sink.WriteStream(dest, decoder, hashutil.HashAlgoBLAKE3)
	if writeErr != nil {
		var se *storage.StorageError
		if errors.As(writeErr, &se) && se.Cause == storage.ErrCauseReadFailure {
			return false, c.fail(book, kind, &RemoteCacheError{Message: se.Message, Cause: ErrCauseDecodeFailure})
		}
		return false, c.fail(book, kind, &RemoteCacheError{Message: writeErr.Error(), Cause: ErrCauseWriteFailure})
	}

	c.metadataSink.RecordFetch(objectURL, resp.StatusCode, time.Since(start), resp.Header.Get("Content-Type"), written.Bytes(), 1)
	c.metadataSink.RecordArtifact(metadata.ArtifactOptimized, written.Path(), []metadata.Attribute{
		metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(book.ID)),
		metadata.NewAttr(metadata.AttrKind, kind),
		metadata.NewAttr(metadata.AttrSource, "remote-cache"),
	})
	return true, nil
}

func (c *HTTPCache) artifactName(book catalog.Book, kind string) string {
	if kind == config.KindCover {
		return c.namer.CoverName(book)
	}
	return c.namer.OptimizedName(book, kind)
}

func (c *HTTPCache) fail(book catalog.Book, kind string, err *RemoteCacheError) *RemoteCacheError {
	c.metadataSink.RecordError(
		time.Now(),
		"remotecache",
		"HTTPCache.Fetch",
		mapRemoteCacheErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(book.ID)),
			metadata.NewAttr(metadata.AttrKind, kind),
		},
	)
	return err
}
