package remotecache

import (
	"context"

	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
)

/*
Client
Port to the remote cache of optimized artifacts.

Fetch materializes the optimized artifact of (book, kind) matching
validator inside destDir. A miss is (false, nil); an error means the
cache could not answer and the caller should treat it as a miss.
*/
type Client interface {
	Fetch(
		ctx context.Context,
		book catalog.Book,
		validator string,
		kind string,
		destDir string,
	) (bool, failure.ClassifiedError)
}

// Disabled is the Client used when no remote cache is configured.
type Disabled struct{}

func (Disabled) Fetch(ctx context.Context, book catalog.Book, validator string, kind string, destDir string) (bool, failure.ClassifiedError) {
	return false, nil
}
