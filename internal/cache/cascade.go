package cache

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rohmanhakim/gutenberg-fetch/internal/catalog"
	"github.com/rohmanhakim/gutenberg-fetch/internal/metadata"
	"github.com/rohmanhakim/gutenberg-fetch/internal/remotecache"
	"github.com/rohmanhakim/gutenberg-fetch/internal/storage"
	"github.com/rohmanhakim/gutenberg-fetch/pkg/failure"
)

// Decision says where the bytes of a (book, kind) come from.
type Decision int

const (
	// DecisionLocal: the target is already on disk.
	DecisionLocal Decision = iota
	// DecisionRemote: the remote cache materialized the optimized artifact.
	DecisionRemote
	// DecisionOrigin: the caller must download from the candidate URL.
	DecisionOrigin
)

func (d Decision) String() string {
	switch d {
	case DecisionLocal:
		return "local"
	case DecisionRemote:
		return "remote-cache"
	case DecisionOrigin:
		return "origin"
	default:
		return "unknown"
	}
}

// Lookup is the outcome of one cascade run.
type Lookup struct {
	decision  Decision
	validator string
}

func (l Lookup) Decision() Decision {
	return l.decision
}

// Validator is the origin validator probed for the URL; empty when the
// probe failed or the server sent none.
func (l Lookup) Validator() string {
	return l.validator
}

// ValidatorProbe captures the current validator of a URL.
type ValidatorProbe interface {
	Validator(ctx context.Context, url string) (string, failure.ClassifiedError)
}

/*
Cascade
Decides whether a (book, kind, url) needs an origin download.

Order
 1. local target present and not forced → DecisionLocal, no network
 2. remote cache keyed by the URL's validator → DecisionRemote
 3. otherwise → DecisionOrigin

Probe or cache failures never abort the book; they degrade to origin.
*/
type Cascade struct {
	metadataSink metadata.MetadataSink
	probe        ValidatorProbe
	remote       remotecache.Client
	force        bool
}

func NewCascade(
	metadataSink metadata.MetadataSink,
	probe ValidatorProbe,
	remote remotecache.Client,
	force bool,
) *Cascade {
	if remote == nil {
		remote = remotecache.Disabled{}
	}
	return &Cascade{
		metadataSink: metadataSink,
		probe:        probe,
		remote:       remote,
		force:        force,
	}
}

// LocalHit reports whether target short-circuits all work.
func (c *Cascade) LocalHit(target storage.Target) bool {
	return !c.force && target.Present()
}

func (c *Cascade) Lookup(
	ctx context.Context,
	book catalog.Book,
	kind string,
	url string,
	target storage.Target,
) Lookup {
	if c.LocalHit(target) {
		return Lookup{decision: DecisionLocal}
	}

	validator, err := c.probe.Validator(ctx, url)
	if err != nil {
		// already recorded by the probe; degrade to a miss
		return Lookup{decision: DecisionOrigin}
	}

	hit, cacheErr := c.remote.Fetch(ctx, book, validator, kind, filepath.Dir(target.Optimized()))
	if cacheErr != nil {
		c.metadataSink.RecordError(
			time.Now(),
			"cache",
			"Cascade.Lookup",
			metadata.CauseNetworkFailure,
			cacheErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrBookID, strconv.Itoa(book.ID)),
				metadata.NewAttr(metadata.AttrKind, kind),
				metadata.NewAttr(metadata.AttrURL, url),
			},
		)
		return Lookup{decision: DecisionOrigin, validator: validator}
	}
	if hit {
		return Lookup{decision: DecisionRemote, validator: validator}
	}
	return Lookup{decision: DecisionOrigin, validator: validator}
}
