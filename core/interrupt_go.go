//go:build !tinygo

package core

import "sync"

// State is the saved interrupt state returned by Enter.
type State uintptr

// CriticalSection serializes the background context against the
// completion handler. On the host both contexts are goroutines, so the
// section is a plain mutex. Sections must never nest.
type CriticalSection struct {
	mu sync.Mutex
}

// Enter begins the critical section.
func (c *CriticalSection) Enter() State {
	c.mu.Lock()
	return 0
}

// Exit ends the critical section.
func (c *CriticalSection) Exit(state State) {
	c.mu.Unlock()
}
