// Package clock abstracts time for the timeout sweeps of the transmission
// controller. Production code uses Real; tests use Fake and advance it by hand.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock is the subset of the time package the controller needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Call Stop when it is no longer needed.
type Ticker struct {
	// C delivers ticks. Buffered with capacity 1; late ticks are dropped.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stopFunc: ticker.Stop}
}

// Fake returns a FakeClock set to initial. Time stands still until Advance is called.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock. Tickers fire during Advance, once per
// elapsed interval, in deadline order.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	deadline time.Time
	interval time.Duration
	channel  chan time.Time
	stopped  bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// NewTicker registers a ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ft := &fakeTicker{
		deadline: c.current.Add(d),
		interval: d,
		channel:  make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, ft)

	return &Ticker{
		C: ft.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ft.stopped = true
		},
	}
}

// Advance moves the clock forward by d and fires due tickers.
// Sends never block; a full ticker channel drops the tick.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.current.Add(d)
	for {
		live := c.tickers[:0]
		for _, ft := range c.tickers {
			if !ft.stopped {
				live = append(live, ft)
			}
		}
		c.tickers = live

		sort.Slice(c.tickers, func(i, j int) bool {
			return c.tickers[i].deadline.Before(c.tickers[j].deadline)
		})
		if len(c.tickers) == 0 || c.tickers[0].deadline.After(target) {
			break
		}

		ft := c.tickers[0]
		c.current = ft.deadline
		select {
		case ft.channel <- ft.deadline:
		default:
		}
		ft.deadline = ft.deadline.Add(ft.interval)
	}
	c.current = target
}

// Set jumps to t without firing tickers. Moving backwards is allowed.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = t
}
