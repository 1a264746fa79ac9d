//go:build tinygo

package core

import "runtime/interrupt"

// State is the saved interrupt state returned by Enter.
type State = interrupt.State

// CriticalSection masks interrupts for its duration, so the completion
// interrupt can never observe a half-updated register.
type CriticalSection struct{}

// Enter disables interrupts and returns the previous state.
func (c *CriticalSection) Enter() State {
	return interrupt.Disable()
}

// Exit restores the interrupt state.
func (c *CriticalSection) Exit(state State) {
	interrupt.Restore(state)
}
