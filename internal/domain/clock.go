package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze time via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic output.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Clock returns the current time source for callers that need timers.
func Clock() clockwork.Clock {
	return clock
}

// Now returns the current time from the injected clock, truncated to the
// second precision used throughout the schema.
func Now() time.Time {
	return clock.Now().Truncate(time.Second)
}
