package fetcher

import (
	"context"

	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
)

/*
Responsibilities
- Tell whether a candidate URL currently serves content
- Capture the content validator of a URL
- Download a URL into a local file, retrying transient failures

Fetcher never decides which candidate to try next; that belongs to the
orchestrator.
*/
type Fetcher interface {
	// Exists is advisory: any failure reads as "does not exist".
	Exists(ctx context.Context, url string) bool
	Validator(ctx context.Context, url string) (string, failure.ClassifiedError)
	Download(ctx context.Context, url string, dest string) (DownloadResult, failure.ClassifiedError)
}
