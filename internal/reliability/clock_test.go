package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClock(t *testing.T) {
	c := NewSystemClock()

	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))

	assert.Equal(t, time.Duration(0), c.ElapsedSince(now.Add(time.Hour)))
}

func TestTestClock(t *testing.T) {
	t.Run("Advance moves time forward", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewTestClock(start)

		c.Advance(time.Minute)

		assert.Equal(t, start.Add(time.Minute), c.Now())
	})

	t.Run("ElapsedSince clamps negative durations to zero", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewTestClock(start)

		future := start.Add(time.Hour)
		assert.Equal(t, time.Duration(0), c.ElapsedSince(future))
	})

	t.Run("Set can move backward", func(t *testing.T) {
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		c := NewTestClock(start)

		c.Set(start.Add(-time.Hour))
		assert.Equal(t, start.Add(-time.Hour), c.Now())
	})
}
