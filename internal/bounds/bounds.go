// Package bounds estimates the edges of the content a manifest makes
// available, for the benefit of period parsing and the time-window model.
package bounds

import (
	"sync"
	"time"

	"dash-resolver/internal/resolver"
)

// Calculator implements resolver.Bounds. It is created once per resolution
// and fed the last position period parsing discovers.
type Calculator struct {
	ast     float64
	dynamic bool
	tsbd    *float64
	offset  *time.Duration
	clock   resolver.Clock

	mu      sync.Mutex
	lastPos *float64
	lastAt  time.Duration
}

// New returns a Calculator for cfg. A nil cfg.Clock selects the system clock.
func New(cfg resolver.BoundsConfig) *Calculator {
	clock := cfg.Clock
	if clock == nil {
		clock = resolver.SystemClock()
	}
	return &Calculator{
		ast:     cfg.AvailabilityStartTime,
		dynamic: cfg.IsDynamic,
		tsbd:    cfg.TimeShiftBufferDepth,
		offset:  cfg.ServerTimestampOffset,
		clock:   clock,
	}
}

// Factory adapts New to resolver.Collaborators.NewBounds.
func Factory(cfg resolver.BoundsConfig) resolver.Bounds {
	return New(cfg)
}

// SetLastPosition records the last position known to be available and the
// monotonic time at which it was known.
func (c *Calculator) SetLastPosition(pos float64, at time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPos = &pos
	c.lastAt = at
}

// LastPosition returns the value given to SetLastPosition.
func (c *Calculator) LastPosition() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastPos == nil {
		return 0, false
	}
	return *c.lastPos, true
}

// EstimatedLiveEdge is the server's "now" on the presentation timeline. It is
// only known for dynamic content with a server clock offset.
func (c *Calculator) EstimatedLiveEdge() (float64, bool) {
	if !c.dynamic || c.offset == nil {
		return 0, false
	}
	return (c.clock.Monotonic() + *c.offset).Seconds() - c.ast, true
}

// EstimatedMaximumPosition is the live edge when known, otherwise the last
// position moved forward by the time elapsed since it was recorded.
func (c *Calculator) EstimatedMaximumPosition() (float64, bool) {
	c.mu.Lock()
	lastPos, lastAt := c.lastPos, c.lastAt
	c.mu.Unlock()

	if !c.dynamic {
		if lastPos == nil {
			return 0, false
		}
		return *lastPos, true
	}
	if live, ok := c.EstimatedLiveEdge(); ok {
		return live, true
	}
	if lastPos == nil {
		return 0, false
	}
	elapsed := c.clock.Monotonic() - lastAt
	return *lastPos + elapsed.Seconds(), true
}

// EstimatedMinimumPosition is the oldest position still inside the
// time-shift window. Static content starts at zero.
func (c *Calculator) EstimatedMinimumPosition() (float64, bool) {
	if !c.dynamic {
		return 0, true
	}
	if c.tsbd == nil {
		return 0, false
	}
	max, ok := c.EstimatedMaximumPosition()
	if !ok {
		return 0, false
	}
	return max - *c.tsbd, true
}
