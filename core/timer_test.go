package core

import (
	"testing"
	"time"
)

func TestTimerConversions(t *testing.T) {
	tests := []struct {
		us    uint32
		ticks uint32
	}{
		{0, 0},
		{1, 12},
		{1000, 12000},
		{250000, 3000000},
	}

	for _, tt := range tests {
		if got := TimerFromUS(tt.us); got != tt.ticks {
			t.Errorf("TimerFromUS(%d) = %d, want %d", tt.us, got, tt.ticks)
		}
		if got := TimerToUS(tt.ticks); got != tt.us {
			t.Errorf("TimerToUS(%d) = %d, want %d", tt.ticks, got, tt.us)
		}
	}
}

func TestTimerComparisonWraps(t *testing.T) {
	tests := []struct {
		a, b   uint32
		before bool
	}{
		{1, 2, true},
		{2, 1, false},
		{5, 5, false},
		{0xFFFFFFFF, 0, true},
		{0, 0xFFFFFFFF, false},
		{0xFFFFFF00, 0x00000100, true},
	}

	for _, tt := range tests {
		if got := timerIsBefore(tt.a, tt.b); got != tt.before {
			t.Errorf("timerIsBefore(%#x, %#x) = %v, want %v", tt.a, tt.b, got, tt.before)
		}
	}

	if !timerDue(100, 100) {
		t.Error("deadline equal to now should be due")
	}
	if timerDue(0x10, 0xFFFFFFF0) {
		t.Error("deadline after the wrap should not be due yet")
	}
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		name          string
		prev, period  uint32
		now           uint32
		next, skipped uint32
	}{
		{"on time", 100, 50, 100, 150, 0},
		{"slightly late", 100, 50, 120, 150, 0},
		{"one period late", 100, 50, 150, 200, 1},
		{"several late", 100, 50, 320, 350, 4},
		{"across wrap", 0xFFFFFFF0, 0x20, 0x05, 0x10, 0},
		{"late across wrap", 0xFFFFFFF0, 0x20, 0x30, 0x50, 2},
	}

	for _, tt := range tests {
		next, skipped := advance(tt.prev, tt.period, tt.now)
		if next != tt.next || skipped != tt.skipped {
			t.Errorf("%s: advance(%#x, %#x, %#x) = %#x, %d; want %#x, %d",
				tt.name, tt.prev, tt.period, tt.now, next, skipped, tt.next, tt.skipped)
		}
	}
}

func TestTickClock(t *testing.T) {
	var c TickClock
	c.Set(0xFFFFFFFE)
	c.Advance(4)
	if c.Now() != 2 {
		t.Errorf("clock did not wrap, Now() = %d", c.Now())
	}
}

func TestMonotonicClockLongUptime(t *testing.T) {
	for _, age := range []time.Duration{20 * time.Minute, 30 * time.Minute, 3 * time.Hour} {
		c := &MonotonicClock{start: time.Now().Add(-age), freq: TimerFreq}
		want := uint32(uint64(age/time.Second) * TimerFreq)

		// The clock keeps running while the test does; allow a second of slack.
		if d := int32(c.Now() - want); d < 0 || d > TimerFreq {
			t.Errorf("after %v Now() is %d ticks off", age, d)
		}
	}
}
