package playback

import (
	"sync"
	"time"
)

// Clock is the monotonic output clock that playback is scheduled against.
// Now reports elapsed time since the clock's origin.
type Clock interface {
	Now() time.Duration
}

// WallClock is a [Clock] backed by the process monotonic clock.
type WallClock struct {
	origin time.Time
}

// NewWallClock returns a [WallClock] whose origin is the current instant.
func NewWallClock() *WallClock {
	return &WallClock{origin: time.Now()}
}

// Now implements [Clock].
func (c *WallClock) Now() time.Duration {
	return time.Since(c.origin)
}

// ManualClock is a [Clock] that only moves when told to. It is safe for
// concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// Now implements [Clock].
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *ManualClock) Set(t time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t > c.now {
		c.now = t
	}
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now += d
	}
}
