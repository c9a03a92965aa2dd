package candidate

import "github.com/rohmanhakim/gutenberg-fetch/pkg/urlutil"

/*
List
Candidate URLs for one (book, kind), ordered by preference with the most
preferred entry at index 0.
Responsibilities:
- Hand out candidates from the tail, lowest priority first
- Keep the full list for diagnostics once every candidate failed
- Tell the caller whether the candidate just popped must be probed

The final remaining entry is never probed: a false negative on it would
leave nothing to try.
*/
type List struct {
	all       []string
	remaining []string
}

// NewList copies urls, dropping entries that canonicalize to an earlier one.
func NewList(urls []string) *List {
	seen := NewSet[string]()
	all := make([]string, 0, len(urls))
	for _, u := range urls {
		key, err := urlutil.CanonicalString(u)
		if err != nil {
			key = u
		}
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		all = append(all, u)
	}
	remaining := make([]string, len(all))
	copy(remaining, all)
	return &List{all: all, remaining: remaining}
}

// Pop removes and returns the tail entry.
// return false on the second returned values if the list is exhausted
func (l *List) Pop() (string, bool) {
	n := len(l.remaining)
	if n == 0 {
		return "", false
	}
	last := l.remaining[n-1]
	l.remaining = l.remaining[:n-1]
	return last, true
}

// NeedsProbe reports whether the entry returned by the latest Pop must pass
// an existence probe before being downloaded.
func (l *List) NeedsProbe() bool {
	return len(l.all) > 1 && len(l.remaining) > 0
}

func (l *List) Total() int {
	return len(l.all)
}

func (l *List) Remaining() int {
	return len(l.remaining)
}

// All returns every candidate in preference order.
func (l *List) All() []string {
	out := make([]string, len(l.all))
	copy(out, l.all)
	return out
}
