package host

import (
	"sync"
	"time"
)

// Clock reports milliseconds elapsed since a window's time origin.
type Clock interface {
	Now() float64
}

type monotonicClock struct {
	origin time.Time
}

// NewClock returns a Clock whose time origin is the moment of the call.
func NewClock() Clock {
	return &monotonicClock{origin: time.Now()}
}

func (c *monotonicClock) Now() float64 {
	return float64(time.Since(c.origin)) / float64(time.Millisecond)
}

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mutex sync.Mutex
	now   float64
}

func NewManualClock(now float64) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() float64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *ManualClock) Set(now float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now = now
}

func (c *ManualClock) Advance(ms float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.now += ms
}
