package storage

import (
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/fileutil"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/hashutil"
)

/*
Responsibilities
- Persist downloaded bytes
- Never leave a partially written file at the final path

Output Characteristics
- Writes go to a temp file in the destination directory, then rename
- Overwrite-safe reruns
*/
type Sink interface {
	WriteStream(
		path string,
		r io.Reader,
		hashAlgo hashutil.HashAlgo,
	) (WriteResult, failure.ClassifiedError)
}

type LocalSink struct {
	metadataSink metadata.MetadataSink
}

func NewLocalSink(
	metadataSink metadata.MetadataSink,
) LocalSink {
	return LocalSink{
		metadataSink: metadataSink,
	}
}

func (s *LocalSink) WriteStream(
	path string,
	r io.Reader,
	hashAlgo hashutil.HashAlgo,
) (WriteResult, failure.ClassifiedError) {
	writeResult, err := writeAtomic(path, r, hashAlgo)
	if err != nil {
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"LocalSink.WriteStream",
			mapStorageErrorToMetadataCause(err),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrPath, err.Path),
			},
		)
		return WriteResult{}, err
	}
	return writeResult, nil
}

func writeAtomic(
	path string,
	r io.Reader,
	hashAlgo hashutil.HashAlgo,
) (WriteResult, *StorageError) {
	dir := filepath.Dir(path)
	if err := fileutil.EnsureDir(dir); err != nil {
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
			Path:      dir,
		}
	}

	hasher, err := hashutil.NewWriter(hashAlgo)
	if err != nil {
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseWriteFailure,
			Path:      path,
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".part-*")
	if err != nil {
		return WriteResult{}, classifyWriteError(err, dir)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	n, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		cleanup()
		var pathErr *os.PathError
		if errors.As(err, &pathErr) && pathErr.Path == tmpName {
			return WriteResult{}, classifyWriteError(err, path)
		}
		// the reader failed, typically a dropped connection
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseReadFailure,
			Path:      path,
		}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return WriteResult{}, classifyWriteError(err, path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return WriteResult{}, classifyWriteError(err, path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return WriteResult{}, classifyWriteError(err, path)
	}

	return NewWriteResult(path, n, hex.EncodeToString(hasher.Sum(nil))), nil
}

func classifyWriteError(err error, path string) *StorageError {
	cause := ErrCauseWriteFailure
	retryable := false
	// Check if it's a disk full error (ENOSPC)
	if errors.Is(err, syscall.ENOSPC) {
		cause = ErrCauseDiskFull
		retryable = true
	}
	return &StorageError{
		Message:   err.Error(),
		Retryable: retryable,
		Cause:     cause,
		Path:      path,
	}
}
