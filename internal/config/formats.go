package config

import "sort"

// Content kinds the downloader knows how to fetch.
const (
	KindEPUB = "epub"
	KindHTML = "html"
	KindPDF  = "pdf"
	// KindCover is not a book format; it keys cover art in the remote cache.
	KindCover = "cover"
)

var formatMatrix = map[string]string{
	KindEPUB: "application/epub+zip",
	KindHTML: "text/html",
	KindPDF:  "application/pdf",
}

// MimeFor returns the catalog MIME type of a kind.
func MimeFor(kind string) (string, bool) {
	mime, ok := formatMatrix[kind]
	return mime, ok
}

// SupportedKinds returns every fetchable kind in a stable order.
func SupportedKinds() []string {
	kinds := make([]string, 0, len(formatMatrix))
	for k := range formatMatrix {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func IsSupportedKind(kind string) bool {
	_, ok := formatMatrix[kind]
	return ok
}

// RequestedKinds expands a requested kind list: empty means every supported
// kind, and html is always included. The input slice is never modified.
func RequestedKinds(requested []string) []string {
	if len(requested) == 0 {
		return SupportedKinds()
	}
	kinds := make([]string, 0, len(requested)+1)
	seen := make(map[string]struct{}, len(requested)+1)
	for _, k := range requested {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kinds = append(kinds, k)
	}
	if _, ok := seen[KindHTML]; !ok {
		kinds = append(kinds, KindHTML)
	}
	return kinds
}
