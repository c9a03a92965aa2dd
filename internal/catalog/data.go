package catalog

import "github.com/rohmanhakim/gutenberg-fetch/internal/config"

// Book is one catalog entry. The downloader reads identity fields and
// writes back the etag fields.
type Book struct {
	ID        int
	Title     string
	Language  string
	HasCover  bool
	HTMLEtag  string
	EpubEtag  string
	CoverEtag string
}

// Format describes one published file shape of a book.
type Format struct {
	Mime    string
	Images  bool
	Pattern string
}

// FormatRecord links a book to a format and carries its provenance.
// SourceURL is the last URL that produced stored bytes for this record.
type FormatRecord struct {
	ID        int64
	BookID    int
	Format    Format
	SourceURL string
}

// EtagField names one of the per-book validator columns.
type EtagField string

const (
	EtagHTML  EtagField = "html_etag"
	EtagEPUB  EtagField = "epub_etag"
	EtagCover EtagField = "cover_etag"
)

// EtagFieldFor maps a kind to the book column holding its validator.
// Kinds without a validator column (pdf) report false.
func EtagFieldFor(kind string) (EtagField, bool) {
	switch kind {
	case config.KindHTML:
		return EtagHTML, true
	case config.KindEPUB:
		return EtagEPUB, true
	case config.KindCover:
		return EtagCover, true
	default:
		return "", false
	}
}

// Etag returns the stored validator for field.
func (b Book) Etag(field EtagField) string {
	switch field {
	case EtagHTML:
		return b.HTMLEtag
	case EtagEPUB:
		return b.EpubEtag
	case EtagCover:
		return b.CoverEtag
	default:
		return ""
	}
}

// Filter selects the books of a run. Empty slices do not filter.
type Filter struct {
	Languages []string
	// Books must carry at least one record with one of these MIME types.
	Mimes     []string
	OnlyBooks []int
}
