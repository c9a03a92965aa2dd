package storage

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"golang.org/x/text/unicode/norm"
)

// Namer is the filename convention for downloaded artifacts.
type Namer interface {
	UnoptimizedName(book catalog.Book, kind string) string
	OptimizedName(book catalog.Book, kind string) string
	CoverName(book catalog.Book) string
}

// GutenbergNamer names files the way the offline packager expects:
//   - unoptimized: <id>.<kind>
//   - optimized:   <slug(title)>.<id>.<kind>
//   - cover:       <id>_cover.jpg
type GutenbergNamer struct{}

func (GutenbergNamer) UnoptimizedName(book catalog.Book, kind string) string {
	return fmt.Sprintf("%d.%s", book.ID, kind)
}

func (GutenbergNamer) OptimizedName(book catalog.Book, kind string) string {
	return fmt.Sprintf("%s.%d.%s", Slug(book.Title), book.ID, kind)
}

func (GutenbergNamer) CoverName(book catalog.Book) string {
	return fmt.Sprintf("%d_cover.jpg", book.ID)
}

const maxSlugLength = 50

// Slug lowercases title, strips accents and joins words with '-'.
// An empty result becomes "book".
func Slug(title string) string {
	var words []string
	var current []rune
	length := 0
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			length += len(current) + 1
			current = current[:0]
		}
	}
	for _, r := range norm.NFKD.String(title) {
		if length+len(current) >= maxSlugLength {
			break
		}
		switch {
		case unicode.Is(unicode.Mn, r):
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			current = append(current, unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	if len(words) == 0 {
		return "book"
	}
	return strings.Join(words, "-")
}
