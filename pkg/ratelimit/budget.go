// Package ratelimit tracks the upstream API's per-key request budget.
// It reads the X-Rate-Limit-Remaining and X-Rate-Limit-Reset headers from
// each response and decides how long the extraction must pause before the
// next request. The budget is re-read from every response; there is no
// persisted state beyond the most recent observation.
package ratelimit

import (
	"time"
)

// Header names advertised by the upstream API.
const (
	HeaderRemaining = "X-Rate-Limit-Remaining"
	HeaderReset     = "X-Rate-Limit-Reset"
)

// ResetBuffer is added to the advertised reset delay so the next request
// lands strictly after the window rolls over.
const ResetBuffer = 1 * time.Second

// Budget is one observation of the remaining request allowance, taken from
// a single response's headers.
type Budget struct {
	// Remaining is the number of calls left in the current window.
	Remaining int `json:"remaining"`

	// ResetAfter is the advertised delay until the window resets, measured
	// from ObservedAt.
	ResetAfter time.Duration `json:"reset_after"`

	// ObservedAt is when the headers were read.
	ObservedAt time.Time `json:"observed_at"`
}

// Exhausted reports whether the budget allows no further calls.
func (b *Budget) Exhausted() bool {
	return b.Remaining < 1
}

// WaitDuration returns how long to pause before the next request.
// Zero when calls remain. When the budget is exhausted the wait is the
// advertised reset delay plus ResetBuffer, reduced by time already elapsed
// since the observation.
func (b *Budget) WaitDuration(now time.Time) time.Duration {
	if !b.Exhausted() {
		return 0
	}
	wait := b.ResetAfter + ResetBuffer - now.Sub(b.ObservedAt)
	if wait < 0 {
		return 0
	}
	return wait
}
