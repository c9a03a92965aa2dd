package orchestrator

import (
	"sort"

	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/config"
)

// selectFormat picks the one record a kind is fetched for.
// html records qualify by pattern allow-list, others by MIME type.
// Image-bearing records win, then higher pattern confidence; remaining
// ties keep the store's order, which the store does not define.
func selectFormat(
	bookID int,
	kind string,
	records []catalog.FormatRecord,
	patterns config.HTMLPatterns,
) (catalog.FormatRecord, bool) {
	type eligible struct {
		record     catalog.FormatRecord
		confidence float64
	}

	var pool []eligible
	if kind == config.KindHTML {
		for _, r := range records {
			if c, ok := patterns.Confidence(bookID, r.Format.Pattern); ok {
				pool = append(pool, eligible{record: r, confidence: c})
			}
		}
	} else {
		mime, ok := config.MimeFor(kind)
		if !ok {
			return catalog.FormatRecord{}, false
		}
		for _, r := range records {
			if r.Format.Mime == mime {
				pool = append(pool, eligible{record: r})
			}
		}
	}
	if len(pool) == 0 {
		return catalog.FormatRecord{}, false
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].record.Format.Images != pool[j].record.Format.Images {
			return pool[i].record.Format.Images
		}
		return pool[i].confidence > pool[j].confidence
	})
	return pool[0].record, true
}

// formatTuples renders records for the "html not found" diagnostic.
func formatTuples(records []catalog.FormatRecord) [][3]any {
	out := make([][3]any, 0, len(records))
	for _, r := range records {
		out = append(out, [3]any{r.Format.Mime, r.Format.Images, r.Format.Pattern})
	}
	return out
}
