package downloader

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

const (
	ThrottleChange   = "change"
	ThrottleInterval = "interval"
)

// Throttle decides whether a progress text is pushed to the chat. A Throttle
// belongs to a single lifecycle and is not safe for concurrent use.
type Throttle interface {
	Allow(text string, now time.Time) bool
}

// ThrottleFactory builds a fresh Throttle for each lifecycle.
type ThrottleFactory func() Throttle

// ChangeDetect lets a text through only when it differs from the last one
// let through.
type ChangeDetect struct {
	last string
	seen bool
}

func NewChangeDetect() *ChangeDetect {
	return &ChangeDetect{}
}

func (c *ChangeDetect) Allow(text string, _ time.Time) bool {
	if c.seen && text == c.last {
		return false
	}

	c.last = text
	c.seen = true

	return true
}

// Interval lets the first text through and then at most one per period.
type Interval struct {
	limiter *rate.Limiter
}

func NewInterval(period time.Duration) *Interval {
	return &Interval{limiter: rate.NewLimiter(rate.Every(period), 1)}
}

func (i *Interval) Allow(_ string, now time.Time) bool {
	return i.limiter.AllowN(now, 1)
}

// NewThrottleFactory maps a configured mode name to a factory.
func NewThrottleFactory(mode string, period time.Duration) (ThrottleFactory, error) {
	switch mode {
	case ThrottleChange, "":
		return func() Throttle { return NewChangeDetect() }, nil
	case ThrottleInterval:
		if period <= 0 {
			return nil, fmt.Errorf("interval throttle needs a positive period, got %s", period)
		}

		return func() Throttle { return NewInterval(period) }, nil
	default:
		return nil, fmt.Errorf("unknown throttle mode %q", mode)
	}
}
