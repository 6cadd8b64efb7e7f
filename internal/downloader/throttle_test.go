package downloader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeDetect(t *testing.T) {
	now := time.Now()
	th := NewChangeDetect()

	assert.True(t, th.Allow("a", now))
	assert.False(t, th.Allow("a", now))
	assert.True(t, th.Allow("b", now))
	assert.True(t, th.Allow("a", now))
	assert.False(t, th.Allow("a", now.Add(time.Hour)))
}

func TestChangeDetect_FirstEmptyText(t *testing.T) {
	th := NewChangeDetect()

	assert.True(t, th.Allow("", time.Now()))
	assert.False(t, th.Allow("", time.Now()))
}

func TestInterval(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	th := NewInterval(10 * time.Second)

	assert.True(t, th.Allow("a", start), "first call is always allowed")
	assert.False(t, th.Allow("b", start.Add(time.Second)))
	assert.False(t, th.Allow("c", start.Add(9*time.Second)))
	assert.True(t, th.Allow("d", start.Add(11*time.Second)))
	assert.False(t, th.Allow("e", start.Add(12*time.Second)))
	assert.True(t, th.Allow("e", start.Add(25*time.Second)))
}

func TestNewThrottleFactory(t *testing.T) {
	f, err := NewThrottleFactory(ThrottleChange, 0)
	require.NoError(t, err)
	assert.IsType(t, &ChangeDetect{}, f())

	f, err = NewThrottleFactory(ThrottleInterval, time.Second)
	require.NoError(t, err)
	assert.IsType(t, &Interval{}, f())

	// every call builds an independent throttle
	a, b := f(), f()
	assert.True(t, a.Allow("x", time.Now()))
	assert.True(t, b.Allow("x", time.Now()))

	_, err = NewThrottleFactory(ThrottleInterval, 0)
	require.Error(t, err)

	_, err = NewThrottleFactory("sometimes", time.Second)
	require.Error(t, err)
}
