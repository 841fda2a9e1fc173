package claim

import "time"

// Backoff is the explicit retry state of one synchronization run.
// Attempt counts the tries already consumed; delays double per attempt:
// BaseDelay * 2^(Attempt-1) after the first, strictly increasing until
// exhaustion.
type Backoff struct {
	Attempt     int
	MaxAttempts int
	BaseDelay   time.Duration
}

// Next consumes one attempt. It returns the delay to wait before the next
// try and false once attempts are exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	b.Attempt++
	if b.Attempt >= b.MaxAttempts {
		return 0, false
	}
	return b.BaseDelay << (b.Attempt - 1), true
}

// Exhausted reports whether all attempts have been consumed.
func (b *Backoff) Exhausted() bool {
	return b.Attempt >= b.MaxAttempts
}
