package orchestrator

// KindStatus is the terminal state of one (book, kind).
type KindStatus int

const (
	// StatusDownloaded: bytes came from origin and provenance was recorded.
	StatusDownloaded KindStatus = iota
	// StatusRemoteHit: the remote cache delivered the optimized artifact.
	StatusRemoteHit
	// StatusLocalSkip: a target was already on disk.
	StatusLocalSkip
	// StatusAbandoned: no candidate produced bytes.
	StatusAbandoned
	// StatusFailed: an environment fault stopped the kind. Always fatal.
	StatusFailed
)

func (s KindStatus) String() string {
	switch s {
	case StatusDownloaded:
		return "downloaded"
	case StatusRemoteHit:
		return "remote-hit"
	case StatusLocalSkip:
		return "local-skip"
	case StatusAbandoned:
		return "abandoned"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type KindOutcome struct {
	Kind   string
	Status KindStatus
	// SourceURL is the URL that produced the stored bytes, if any.
	SourceURL  string
	Validator  string
	Reason     string
	Candidates []string
	Err        error
}

type BookOutcome struct {
	BookID int
	Kinds  []KindOutcome
}

// Fatal reports whether any kind ended in StatusFailed.
func (o BookOutcome) Fatal() bool {
	for _, k := range o.Kinds {
		if k.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Kind returns the outcome recorded for kind.
func (o BookOutcome) Kind(kind string) (KindOutcome, bool) {
	for _, k := range o.Kinds {
		if k.Kind == kind {
			return k, true
		}
	}
	return KindOutcome{}, false
}
