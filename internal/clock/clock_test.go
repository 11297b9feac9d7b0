package clock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSystemNeverGoesBackwards(t *testing.T) {
	var c System
	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		require.False(t, now.Before(prev))
		prev = now
	}
}

func TestSystemHoldsLastValue(t *testing.T) {
	c := System{last: time.Now().Add(time.Hour)}
	require.Equal(t, c.last, c.Now())
}

func TestUUIDUnique(t *testing.T) {
	var g UUID
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		id := g.NewID()
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		require.False(t, seen[id])
		seen[id] = true
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	f := NewFake(start)
	require.Equal(t, start, f.Now())
	f.Advance(90 * time.Minute)
	require.Equal(t, start.Add(90*time.Minute), f.Now())
	f.Set(start)
	require.Equal(t, start, f.Now())
}
