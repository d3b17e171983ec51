package bounds

import (
	"testing"
	"time"

	"dash-resolver/internal/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mono time.Duration
}

func (c *stepClock) Monotonic() time.Duration { return c.mono }
func (c *stepClock) Now() time.Time           { return time.Unix(0, 0) }

func f64(v float64) *float64 { return &v }

func TestCalculator_liveEdgeNeedsOffset(t *testing.T) {
	clock := &stepClock{mono: 5 * time.Second}
	c := New(resolver.BoundsConfig{AvailabilityStartTime: 100, IsDynamic: true, Clock: clock})

	_, ok := c.EstimatedLiveEdge()
	assert.False(t, ok)

	offset := 200 * time.Second
	c = New(resolver.BoundsConfig{AvailabilityStartTime: 100, IsDynamic: true, ServerTimestampOffset: &offset, Clock: clock})
	live, ok := c.EstimatedLiveEdge()
	require.True(t, ok)
	assert.InDelta(t, 105.0, live, 1e-9)
}

func TestCalculator_staticHasNoLiveEdge(t *testing.T) {
	offset := time.Duration(0)
	c := New(resolver.BoundsConfig{ServerTimestampOffset: &offset, Clock: &stepClock{}})

	_, ok := c.EstimatedLiveEdge()
	assert.False(t, ok)

	min, ok := c.EstimatedMinimumPosition()
	assert.True(t, ok)
	assert.Equal(t, 0.0, min)

	_, ok = c.EstimatedMaximumPosition()
	assert.False(t, ok)
	c.SetLastPosition(42, 0)
	max, ok := c.EstimatedMaximumPosition()
	assert.True(t, ok)
	assert.Equal(t, 42.0, max)
}

func TestCalculator_maximumExtrapolatesLastPosition(t *testing.T) {
	clock := &stepClock{mono: 10 * time.Second}
	c := New(resolver.BoundsConfig{IsDynamic: true, TimeShiftBufferDepth: f64(30), Clock: clock})

	_, ok := c.EstimatedMaximumPosition()
	assert.False(t, ok)

	c.SetLastPosition(50, 10*time.Second)
	clock.mono = 14 * time.Second

	max, ok := c.EstimatedMaximumPosition()
	require.True(t, ok)
	assert.InDelta(t, 54.0, max, 1e-9)

	min, ok := c.EstimatedMinimumPosition()
	require.True(t, ok)
	assert.InDelta(t, 24.0, min, 1e-9)

	last, ok := c.LastPosition()
	require.True(t, ok)
	assert.Equal(t, 50.0, last)
}

func TestCalculator_minimumWithoutDepth(t *testing.T) {
	c := New(resolver.BoundsConfig{IsDynamic: true, Clock: &stepClock{}})
	c.SetLastPosition(10, 0)
	_, ok := c.EstimatedMinimumPosition()
	assert.False(t, ok)
}

func TestFactory(t *testing.T) {
	var b resolver.Bounds = Factory(resolver.BoundsConfig{})
	_, ok := b.LastPosition()
	assert.False(t, ok)
}
