package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
)

/*
Resolver
Port producing candidate URLs for a book.

Resolve returns, per kind, the candidate URLs ordered by preference with
the most preferred entry first. A kind may be missing from the map.
*/
type Resolver interface {
	Resolve(ctx context.Context, book catalog.Book) (map[string][]string, error)
}

// MirrorDir is the relative directory of a book on a Gutenberg mirror:
// every digit of the id but the last, then the id itself.
//
//	2701 → 2/7/0/2701
//	7    → 0/7
func MirrorDir(bookID int) string {
	id := strconv.Itoa(bookID)
	if len(id) == 1 {
		return "0/" + id
	}
	parts := strings.Split(id[:len(id)-1], "")
	return strings.Join(append(parts, id), "/")
}

// templates lists the historical locations of each kind. {dir} is the
// book's mirror directory URL, {cache} its generated-files URL.
var templates = map[string][]string{
	config.KindHTML: {
		"{dir}/{id}-h.zip",
		"{dir}/{id}-h/{id}-h.htm",
		"{dir}/{id}-h.htm",
		"{cache}/pg{id}-images.html",
	},
	config.KindEPUB: {
		"{cache}/pg{id}-images.epub",
		"{cache}/pg{id}.epub",
		"{cache}/pg{id}-noimages.epub",
	},
	config.KindPDF: {
		"{dir}/{id}-pdf.pdf",
		"{dir}/{id}.pdf",
	},
}

func expand(template string, dirURL string, cacheURL string, bookID int) string {
	r := strings.NewReplacer(
		"{dir}", dirURL,
		"{cache}", cacheURL,
		"{id}", strconv.Itoa(bookID),
	)
	return r.Replace(template)
}

// joinBase appends elem to base, which must be absolute.
func joinBase(base string, elem string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("%q is not absolute", base)
	}
	return strings.TrimRight(u.String(), "/") + "/" + strings.TrimLeft(elem, "/"), nil
}
