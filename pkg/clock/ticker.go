// Package clock drives the marketplace's slot advancement with a simple
// periodic ticker. Unlike a consensus clock, ticks here are soft: no
// genesis-aligned scheduling is attempted, only a steady period.
package clock

import "time"

// Ticker emits a tick every period until Stop is called. The channel
// carries the tick's wall-clock time, mirroring time.Ticker.
type Ticker struct {
	c    chan time.Time
	done chan struct{}
}

// New starts and returns a new Ticker firing every period.
func New(period time.Duration) *Ticker {
	t := &Ticker{
		c:    make(chan time.Time),
		done: make(chan struct{}),
	}
	t.start(period, time.NewTicker)
	return t
}

// C returns the tick channel. Call Stop afterwards to let the goroutine exit.
func (t *Ticker) C() <-chan time.Time {
	return t.c
}

// Stop terminates the background goroutine. Safe to call once.
func (t *Ticker) Stop() {
	close(t.done)
}

func (t *Ticker) start(period time.Duration, newTicker func(time.Duration) *time.Ticker) {
	underlying := newTicker(period)
	go func() {
		defer underlying.Stop()
		for {
			select {
			case now := <-underlying.C:
				select {
				case t.c <- now:
				case <-t.done:
					return
				}
			case <-t.done:
				return
			}
		}
	}()
}
