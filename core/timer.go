package core

import (
	"sync/atomic"
	"time"
)

// Timer frequencies for common MCUs
const (
	TimerFreq = 12000000 // 12MHz default timer frequency
)

// Clock supplies the current time in timer ticks.
type Clock interface {
	Now() uint32
}

// TickClock is a clock whose time is set by the caller (hardware tick
// interrupt, simulator or test).
type TickClock struct {
	ticks uint32 // atomic
}

// Now returns the current tick count.
func (c *TickClock) Now() uint32 {
	return atomic.LoadUint32(&c.ticks)
}

// Set sets the current tick count.
func (c *TickClock) Set(ticks uint32) {
	atomic.StoreUint32(&c.ticks, ticks)
}

// Advance moves the clock forward and returns the new time.
func (c *TickClock) Advance(ticks uint32) uint32 {
	return atomic.AddUint32(&c.ticks, ticks)
}

// MonotonicClock derives ticks from the runtime's monotonic clock.
type MonotonicClock struct {
	start time.Time
	freq  uint64
}

// NewMonotonicClock returns a clock counting freq ticks per second from now.
// A zero freq selects TimerFreq.
func NewMonotonicClock(freq uint32) *MonotonicClock {
	if freq == 0 {
		freq = TimerFreq
	}
	return &MonotonicClock{start: time.Now(), freq: uint64(freq)}
}

// Now returns the elapsed ticks, wrapping at 32 bits. Whole seconds and the
// remainder are scaled apart so the product stays within 64 bits.
func (c *MonotonicClock) Now() uint32 {
	elapsed := time.Since(c.start)
	secs := uint64(elapsed / time.Second)
	ns := uint64(elapsed % time.Second)
	return uint32(secs*c.freq + ns*c.freq/uint64(time.Second))
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// timerIsBefore reports whether a is strictly before b, tolerating
// wraparound of the 32-bit tick counter.
func timerIsBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// timerDue reports whether deadline has been reached at now.
func timerDue(deadline, now uint32) bool {
	return !timerIsBefore(now, deadline)
}
