//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"
)

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

// clockFreq is the rate of the RP2040 microsecond timer.
const clockFreq = 1000000

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// hwClock reads the low 32 bits of the 1MHz hardware timer. It wraps
// roughly every 71 minutes, which the scheduler's deadline arithmetic
// tolerates.
type hwClock struct{}

func (hwClock) Now() uint32 {
	return timerRAWL.Get()
}
