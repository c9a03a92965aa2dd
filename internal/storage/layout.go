package storage

import (
	"path/filepath"
	"strconv"

	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/fileutil"
)

const (
	UnoptimizedDirName = "unoptimized"
	OptimizedDirName   = "optimized"
)

/*
Layout
The on-disk download tree:

	<cacheDir>/<bookID>/unoptimized/
	<cacheDir>/<bookID>/optimized/

Responsibilities
- Compute per-book directories and per-kind targets
- Create directories on demand
*/
type Layout struct {
	cacheDir string
	namer    Namer
}

func NewLayout(cacheDir string, namer Namer) Layout {
	if namer == nil {
		namer = GutenbergNamer{}
	}
	return Layout{cacheDir: cacheDir, namer: namer}
}

func (l Layout) CacheDir() string {
	return l.cacheDir
}

func (l Layout) BookDir(bookID int) string {
	return filepath.Join(l.cacheDir, strconv.Itoa(bookID))
}

func (l Layout) UnoptimizedDir(bookID int) string {
	return filepath.Join(l.BookDir(bookID), UnoptimizedDirName)
}

func (l Layout) OptimizedDir(bookID int) string {
	return filepath.Join(l.BookDir(bookID), OptimizedDirName)
}

// Prepare creates both per-book directories.
func (l Layout) Prepare(bookID int) failure.ClassifiedError {
	for _, dir := range []string{l.UnoptimizedDir(bookID), l.OptimizedDir(bookID)} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return &StorageError{
				Message:   err.Error(),
				Retryable: false,
				Cause:     ErrCausePathError,
				Path:      dir,
			}
		}
	}
	return nil
}

// Target computes where a (book, kind) lives on disk.
func (l Layout) Target(book catalog.Book, kind string) Target {
	unoptimized := filepath.Join(l.UnoptimizedDir(book.ID), l.namer.UnoptimizedName(book, kind))
	return NewTarget(
		unoptimized,
		filepath.Join(l.OptimizedDir(book.ID), l.namer.OptimizedName(book, kind)),
		unoptimized+".zip",
	)
}

// CoverTarget computes where a book's cover lives on disk. Both forms share a name.
func (l Layout) CoverTarget(book catalog.Book) Target {
	name := l.namer.CoverName(book)
	return NewTarget(
		filepath.Join(l.UnoptimizedDir(book.ID), name),
		filepath.Join(l.OptimizedDir(book.ID), name),
		"",
	)
}

// Present reports whether either form of the target is on disk.
func (t Target) Present() bool {
	return fileutil.Exists(t.unoptimized) || fileutil.Exists(t.optimized)
}
