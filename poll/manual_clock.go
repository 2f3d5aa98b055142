package poll

import (
	"sync"
	"time"
)

// ManualClock is a Clock whose tickers only fire when Tick is called.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManualClock returns a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// NewTicker implements Clock.
func (c *ManualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Tick delivers one tick to every live ticker, blocking until each one has
// been received. It returns the number of tickers that received the tick.
func (c *ManualClock) Tick(d time.Duration) int {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*manualTicker(nil), c.tickers...)
	c.mu.Unlock()

	delivered := 0
	for _, t := range tickers {
		if t.isStopped() {
			continue
		}
		select {
		case t.ch <- now:
			delivered++
		case <-time.After(time.Second):
			// Receiver exited between the stop check and the send.
		}
	}
	return delivered
}

// Now returns the clock's current time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
