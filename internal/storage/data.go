package storage

// WriteResult describes one file durably written by a Sink.
type WriteResult struct {
	path        string
	bytes       int64
	contentHash string
}

func NewWriteResult(
	path string,
	bytes int64,
	contentHash string,
) WriteResult {
	return WriteResult{
		path:        path,
		bytes:       bytes,
		contentHash: contentHash,
	}
}

func (w WriteResult) Path() string {
	return w.path
}

func (w WriteResult) Bytes() int64 {
	return w.bytes
}

func (w WriteResult) ContentHash() string {
	return w.contentHash
}

// Target holds the two local paths a (book, kind) may occupy.
type Target struct {
	unoptimized string
	optimized   string
	archive     string
}

func NewTarget(unoptimized, optimized, archive string) Target {
	return Target{
		unoptimized: unoptimized,
		optimized:   optimized,
		archive:     archive,
	}
}

// Unoptimized is the path of the raw fetched form.
func (t Target) Unoptimized() string {
	return t.unoptimized
}

// Optimized is the path of the cache-delivered, already processed form.
func (t Target) Optimized() string {
	return t.optimized
}

// Archive is where a zip-packaged download is staged before extraction.
func (t Target) Archive() string {
	return t.archive
}
