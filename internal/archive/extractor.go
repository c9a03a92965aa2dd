package archive

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/fileutil"
)

/*
Extractor
Unpacks a zip-packaged book into canonical per-book filenames.

Responsibilities
- Reject archives carrying a path-traversal member before writing anything
- Unpack into a scratch directory, then move each file into place
- Remove the source archive and the scratch directory on every exit path

Naming
- non-HTML members become <bookID>_<basename>
- a lone HTML member becomes <bookID>.html
- with several HTML members, only <bookID>-h.* becomes <bookID>.html,
  the others keep <bookID>_<basename>
*/
type Extractor interface {
	Extract(zipPath string, bookID int, dstDir string) (ExtractedFileSet, failure.ClassifiedError)
}

type ZipExtractor struct {
	metadataSink metadata.MetadataSink
	scratchDir   string
}

// NewZipExtractor creates scratch directories under scratchDir, or the
// system temp dir when scratchDir is empty.
func NewZipExtractor(metadataSink metadata.MetadataSink, scratchDir string) *ZipExtractor {
	return &ZipExtractor{
		metadataSink: metadataSink,
		scratchDir:   scratchDir,
	}
}

func (x *ZipExtractor) Extract(
	zipPath string,
	bookID int,
	dstDir string,
) (ExtractedFileSet, failure.ClassifiedError) {
	defer os.Remove(zipPath)

	files, err := x.extract(zipPath, bookID, dstDir)
	if err != nil {
		x.metadataSink.RecordError(
			time.Now(),
			"archive",
			"ZipExtractor.Extract",
			mapArchiveErrorToMetadataCause(err),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(bookID)),
				metadata.NewAttr(metadata.AttrPath, zipPath),
			},
		)
		return ExtractedFileSet{}, err
	}
	for _, f := range files {
		x.metadataSink.RecordArtifact(metadata.ArtifactArchiveMember, f, []metadata.Attribute{
			metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(bookID)),
		})
	}
	return ExtractedFileSet{files: files}, nil
}

func (x *ZipExtractor) extract(zipPath string, bookID int, dstDir string) ([]string, *ArchiveError) {
	// an insecure-path warning still comes with a usable reader; members
	// are vetted below either way
	reader, err := zip.OpenReader(zipPath)
	if reader == nil {
		msg := "cannot open archive"
		if err != nil {
			msg = err.Error()
		}
		return nil, &ArchiveError{Message: msg, Cause: ErrCauseMalformed}
	}
	defer reader.Close()

	htmlCount := 0
	for _, member := range reader.File {
		if !isSafeName(member.Name) {
			return nil, &ArchiveError{
				Message: "member escapes the book directory",
				Cause:   ErrCauseUnsafe,
				Entry:   member.Name,
			}
		}
		if !isDirectoryEntry(member.Name) && isHTMLLike(member.Name) {
			htmlCount++
		}
	}
	multiHTML := htmlCount > 1

	if err := os.MkdirAll(x.scratchRoot(), 0o755); err != nil {
		return nil, &ArchiveError{Message: err.Error(), Cause: ErrCauseScratchFailure}
	}
	scratch, err := os.MkdirTemp(x.scratchRoot(), "extract-"+strconv.Itoa(bookID)+"-*")
	if err != nil {
		return nil, &ArchiveError{Message: err.Error(), Cause: ErrCauseScratchFailure}
	}
	defer os.RemoveAll(scratch)

	type staged struct {
		src  string
		name string
	}
	var pending []staged
	for i, member := range reader.File {
		if isDirectoryEntry(member.Name) {
			continue
		}
		// members are staged under their index so identical basenames never collide
		src := filepath.Join(scratch, strconv.Itoa(i))
		if err := unpackMember(member, src); err != nil {
			return nil, err
		}
		pending = append(pending, staged{src: src, name: canonicalName(bookID, member.Name, multiHTML)})
	}

	if err := fileutil.EnsureDir(dstDir); err != nil {
		return nil, &ArchiveError{Message: err.Error(), Cause: ErrCauseMoveFailure}
	}
	files := make([]string, 0, len(pending))
	for _, p := range pending {
		dst := filepath.Join(dstDir, p.name)
		if err := fileutil.MoveFile(p.src, dst); err != nil {
			return files, &ArchiveError{Message: err.Error(), Cause: ErrCauseMoveFailure, Entry: p.name}
		}
		files = append(files, dst)
	}
	return files, nil
}

func (x *ZipExtractor) scratchRoot() string {
	if x.scratchDir == "" {
		return os.TempDir()
	}
	return x.scratchDir
}

func unpackMember(member *zip.File, dst string) *ArchiveError {
	rc, err := member.Open()
	if err != nil {
		return &ArchiveError{Message: err.Error(), Cause: ErrCauseMalformed, Entry: member.Name}
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &ArchiveError{Message: err.Error(), Cause: ErrCauseScratchFailure, Entry: member.Name}
	}
	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if copyErr != nil {
		var pathErr *os.PathError
		if errors.As(copyErr, &pathErr) {
			return &ArchiveError{Message: copyErr.Error(), Cause: ErrCauseScratchFailure, Entry: member.Name}
		}
		return &ArchiveError{Message: copyErr.Error(), Cause: ErrCauseMalformed, Entry: member.Name}
	}
	if closeErr != nil {
		return &ArchiveError{Message: closeErr.Error(), Cause: ErrCauseScratchFailure, Entry: member.Name}
	}
	return nil
}
