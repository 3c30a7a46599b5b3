// Package ticks includes ticker utilities for the engine's fixed-cadence
// aggregation loop.
package ticks

import (
	"time"
)

// Ticker is a convenience interface for the tick ticker.
type Ticker interface {
	// C returns the channel on which tick numbers are delivered.
	C() <-chan uint64
	// Done stops the ticker goroutine.
	Done()
}

// TickTicker is a special ticker for the engine's consensus loop. The channel
// emits over the tick interval, and tick numbers are counted from the session
// start time.
type TickTicker struct {
	c    chan uint64
	done chan struct{}
}

// NewTickTicker starts and returns a ticker that delivers the current tick
// number at every interval boundary after the given start time.
func NewTickTicker(startTime time.Time, intervalMs int64) *TickTicker {
	if intervalMs <= 0 {
		panic("interval must be positive")
	}
	ticker := &TickTicker{
		c:    make(chan uint64),
		done: make(chan struct{}),
	}
	ticker.start(startTime, intervalMs, time.Since, time.Until, time.After)
	return ticker
}

// C returns the ticker channel. Call Cancel afterwards to ensure
// no goroutine leak.
func (t *TickTicker) C() <-chan uint64 {
	return t.c
}

// Done should be called to clean up the ticker.
func (t *TickTicker) Done() {
	go func() {
		t.done <- struct{}{}
	}()
}

func (t *TickTicker) start(
	startTime time.Time,
	intervalMs int64,
	since, until func(time.Time) time.Duration,
	after func(time.Duration) <-chan time.Time,
) {
	interval := time.Duration(intervalMs) * time.Millisecond

	go func() {
		sinceStart := since(startTime)
		var nextTickTime time.Duration
		var tick uint64
		if sinceStart < 0 {
			// Handle when the current time is before the session start time.
			nextTickTime = 0
			tick = 0
		} else {
			nextTick := sinceStart.Truncate(interval) + interval
			tick = uint64(nextTick / interval)
			nextTickTime = nextTick
		}

		for {
			waitTime := until(startTime.Add(nextTickTime))
			select {
			case <-after(waitTime):
				t.c <- tick
				tick++
				nextTickTime += interval
			case <-t.done:
				return
			}
		}
	}()
}
