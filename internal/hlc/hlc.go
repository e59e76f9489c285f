// Package hlc implements a hybrid logical clock: a (wall_ms, counter) pair
// giving every node a total order on events that is consistent with
// causality even when wall clocks drift or run backwards.
package hlc

import (
	"fmt"
	"sync"
)

// Timestamp is a single HLC value. Timestamps are totally ordered
// lexicographically by (Wall, Counter).
type Timestamp struct {
	Wall    uint64 `json:"wall" cbor:"wall"`
	Counter uint32 `json:"counter" cbor:"counter"`
}

// Compare returns -1, 0, or 1 if t sorts before, equal to, or after other.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.Wall < other.Wall:
		return -1
	case t.Wall > other.Wall:
		return 1
	case t.Counter < other.Counter:
		return -1
	case t.Counter > other.Counter:
		return 1
	default:
		return 0
	}
}

// Less reports whether t happens strictly before other in the total order.
func (t Timestamp) Less(other Timestamp) bool { return t.Compare(other) < 0 }

// String renders the timestamp as "wall.counter" for logs and diagnostics.
func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%d", t.Wall, t.Counter)
}

// NowFunc returns the current wall-clock time in milliseconds. Tests
// substitute a deterministic clock; production wires time.Now().
type NowFunc func() uint64

// Clock is a node-local hybrid logical clock. Safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now NowFunc
	t   Timestamp
}

// New creates a clock seeded at zero, driven by now for wall-clock reads.
func New(now NowFunc) *Clock {
	return &Clock{now: now}
}

// Tick produces the timestamp for a local event and advances clock state.
//
//	wall := max(now_ms, wall); counter += 1 if now_ms <= wall else counter := 0
func (c *Clock) Tick() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	nowMs := c.now()
	prevWall := c.t.Wall
	if nowMs > prevWall {
		c.t.Wall = nowMs
		c.t.Counter = 0
	} else {
		c.t.Wall = prevWall
		c.t.Counter++
	}
	return c.t
}

// Receive merges a remote timestamp into the clock on message receipt and
// returns the resulting local timestamp.
//
//	wall := max(self.wall, w, now_ms)
//	counter := max(self.counter, c)+1  if wall == self.wall == w
//	           self.counter+1          if wall == self.wall only
//	           c+1                     if wall == w only
//	           0                       otherwise (now_ms alone is the max)
func (c *Clock) Receive(remote Timestamp) Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	nowMs := c.now()
	maxWall := c.t.Wall
	if remote.Wall > maxWall {
		maxWall = remote.Wall
	}
	if nowMs > maxWall {
		maxWall = nowMs
	}

	switch {
	case maxWall == c.t.Wall && maxWall == remote.Wall:
		if remote.Counter > c.t.Counter {
			c.t.Counter = remote.Counter + 1
		} else {
			c.t.Counter++
		}
	case maxWall == c.t.Wall:
		c.t.Counter++
	case maxWall == remote.Wall:
		c.t.Counter = remote.Counter + 1
	default:
		c.t.Counter = 0
	}
	c.t.Wall = maxWall
	return c.t
}

// Snapshot returns the current timestamp without advancing the clock.
func (c *Clock) Snapshot() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}
