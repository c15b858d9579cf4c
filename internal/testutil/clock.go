package testutil

import "sync"

// ManualClock is a host tick clock driven by the test.
//
// Unlike a real host, nothing advances it except Set and Advance, so a
// scenario can place every request at an exact tick.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu   sync.Mutex
	tick uint64
}

// NewManualClock creates a clock at the given tick.
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{tick: start}
}

// CurrentTick implements ledger.Clock.
func (c *ManualClock) CurrentTick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick
}

// Set moves the clock to tick. Moving backwards panics: host ticks are
// non-decreasing and a test that rewinds is misconfigured.
func (c *ManualClock) Set(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tick < c.tick {
		panic("ManualClock: tick moved backwards")
	}
	c.tick = tick
}

// Advance moves the clock forward by n ticks and returns the new tick.
func (c *ManualClock) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick += n
	return c.tick
}
