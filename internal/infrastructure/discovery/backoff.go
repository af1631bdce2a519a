package discovery

import "time"

const (
	// initialProbeInterval is the wait before the first repeated probe.
	initialProbeInterval = time.Second
	// maxProbeInterval caps the doubling.
	maxProbeInterval = 60 * time.Second
)

// probeDelay computes the wait after probe number attempt (0-based):
// initial doubled per attempt, capped at maxDelay.
func probeDelay(attempt int, initial, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 62 {
		return maxDelay
	}
	delay := time.Duration(1<<attempt) * initial
	if delay <= 0 || (maxDelay > 0 && delay > maxDelay) {
		return maxDelay
	}
	return delay
}
