package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

/*
MirrorResolver
Builds candidates from the known mirror layouts.

With listing enabled the book's mirror directory index is fetched and
only templated URLs it lists are kept, followed by any other listed file
of the kind. A failed or empty listing falls back to the templates.
*/
type MirrorResolver struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	mirrorURL    string
	cacheURL     string
	userAgent    string
	listMirror   bool
}

func NewMirrorResolver(
	metadataSink metadata.MetadataSink,
	httpClient *http.Client,
	mirrorURL string,
	cacheURL string,
	userAgent string,
	listMirror bool,
) *MirrorResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &MirrorResolver{
		metadataSink: metadataSink,
		httpClient:   httpClient,
		mirrorURL:    mirrorURL,
		cacheURL:     cacheURL,
		userAgent:    userAgent,
		listMirror:   listMirror,
	}
}

func (m *MirrorResolver) Resolve(ctx context.Context, book catalog.Book) (map[string][]string, error) {
	dirURL, err := joinBase(m.mirrorURL, MirrorDir(book.ID))
	if err != nil {
		return nil, &ResolverError{Message: err.Error(), Cause: ErrCauseInvalidBase}
	}
	cacheURL, err := joinBase(m.cacheURL, strconv.Itoa(book.ID))
	if err != nil {
		return nil, &ResolverError{Message: err.Error(), Cause: ErrCauseInvalidBase}
	}

	out := make(map[string][]string, len(templates))
	for kind, kindTemplates := range templates {
		urls := make([]string, 0, len(kindTemplates))
		for _, t := range kindTemplates {
			urls = append(urls, expand(t, dirURL, cacheURL, book.ID))
		}
		out[kind] = urls
	}

	if !m.listMirror {
		return out, nil
	}

	listed, listErr := m.list(ctx, dirURL+"/")
	if listErr != nil {
		m.metadataSink.RecordError(
			time.Now(),
			"resolver",
			"MirrorResolver.Resolve",
			metadata.CauseNetworkFailure,
			listErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(book.ID)),
				metadata.NewAttr(metadata.AttrURL, dirURL),
			},
		)
		return out, nil
	}
	for kind, urls := range out {
		out[kind] = mergeListing(kind, urls, listed, dirURL)
	}
	return out, nil
}

// list returns the absolute URLs of the files linked from a directory index.
func (m *MirrorResolver) list(ctx context.Context, dirURL string) ([]string, *ResolverError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dirURL, nil)
	if err != nil {
		return nil, &ResolverError{Message: err.Error(), Cause: ErrCauseListingFailure}
	}
	if m.userAgent != "" {
		req.Header.Set("User-Agent", m.userAgent)
	}
	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &ResolverError{Message: err.Error(), Retryable: true, Cause: ErrCauseListingFailure}
	}
	defer resp.Body.Close()
	m.metadataSink.RecordFetch(dirURL, resp.StatusCode, time.Since(start), resp.Header.Get("Content-Type"), resp.ContentLength, 1)
	if resp.StatusCode != http.StatusOK {
		return nil, &ResolverError{
			Message: fmt.Sprintf("GET %s: status %d", dirURL, resp.StatusCode),
			Cause:   ErrCauseListingFailure,
		}
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &ResolverError{Message: err.Error(), Cause: ErrCauseListingFailure}
	}
	root, err := html.Parse(body)
	if err != nil {
		return nil, &ResolverError{Message: err.Error(), Cause: ErrCauseListingFailure}
	}
	return listedFiles(goquery.NewDocumentFromNode(root), dirURL), nil
}

func listedFiles(doc *goquery.Document, dirURL string) []string {
	base, err := url.Parse(dirURL)
	if err != nil {
		return nil
	}
	var files []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || strings.HasPrefix(href, "?") || strings.HasSuffix(href, "/") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		// stay inside the book directory
		if abs.Host != base.Host || path.Dir(abs.Path) != strings.TrimSuffix(base.Path, "/") {
			return
		}
		files = append(files, abs.String())
	})
	return files
}

func mergeListing(kind string, templated []string, listed []string, dirURL string) []string {
	present := make(map[string]bool, len(listed))
	for _, l := range listed {
		present[l] = true
	}

	merged := make([]string, 0, len(templated)+len(listed))
	used := make(map[string]bool)
	for _, t := range templated {
		// templates outside the directory cannot be checked against it
		if present[t] || !strings.HasPrefix(t, dirURL+"/") {
			merged = append(merged, t)
			used[t] = true
		}
	}
	for _, l := range listed {
		if !used[l] && matchesKind(kind, l) {
			merged = append(merged, l)
			used[l] = true
		}
	}
	if len(merged) == 0 {
		return templated
	}
	return merged
}

func matchesKind(kind string, rawURL string) bool {
	name := strings.ToLower(path.Base(rawURL))
	switch kind {
	case config.KindHTML:
		return strings.HasSuffix(name, "-h.zip") || strings.HasSuffix(name, ".htm") || strings.HasSuffix(name, ".html")
	case config.KindEPUB:
		return strings.HasSuffix(name, ".epub")
	case config.KindPDF:
		return strings.HasSuffix(name, ".pdf")
	default:
		return false
	}
}
