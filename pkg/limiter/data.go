package limiter

import "time"

// timing-related data used to pace requests to one mirror host
type hostTiming struct {
	lastFetchAt  time.Time
	backoffDelay time.Duration
	hostDelay    time.Duration
	backoffCount int
}

// HostDelay is the server-requested delay (Retry-After) for the host.
func (h hostTiming) HostDelay() time.Duration {
	return h.hostDelay
}

func (h hostTiming) BackoffDelay() time.Duration {
	return h.backoffDelay
}

func (h hostTiming) LastFetchAt() time.Time {
	return h.lastFetchAt
}

func (h hostTiming) BackoffCount() int {
	return h.backoffCount
}
