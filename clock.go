package xstreams

import (
	"time"

	"github.com/trickstertwo/xclock"
)

// Clock is the time source for trim scheduling and pump timing. xclock clocks satisfy it.
type Clock interface {
	Now() time.Time
}

// Timers is implemented by clocks that also schedule waits, such as manual test clocks.
type Timers interface {
	After(d time.Duration) <-chan time.Time
}

// DefaultClock returns the process-wide xclock clock.
func DefaultClock() Clock { return xclock.Default() }

// After returns a channel that receives once d has passed on c. Clocks without Timers
// wait on the runtime timer.
func After(c Clock, d time.Duration) <-chan time.Time {
	if t, ok := c.(Timers); ok {
		return t.After(d)
	}
	return time.After(d)
}
