package core

import "sync/atomic"

// Shutdown is the halt latch shared by the scheduler and the completion
// handler. Once tripped nothing is armed or retired again.
type Shutdown struct {
	halted uint32 // atomic bool
	reason Event

	sink  Sink
	ring  *EventRing
	debug DebugWriter
}

// Try halts the subsystem. Only the first call records a reason, reports it
// and dumps the event ring.
func (s *Shutdown) Try(ev Event) {
	if !atomic.CompareAndSwapUint32(&s.halted, 0, 2) {
		return
	}
	s.reason = ev
	atomic.StoreUint32(&s.halted, 1)

	s.sink.Report(ev)
	if s.ring != nil {
		s.ring.Dump(s.debug)
	}
}

// Halted reports whether the latch has tripped.
func (s *Shutdown) Halted() bool {
	return atomic.LoadUint32(&s.halted) != 0
}

// Err returns the error that tripped the latch. While the latch is still
// tripping the reason is not published yet and ErrInvariantViolation stands
// in for it.
func (s *Shutdown) Err() error {
	switch atomic.LoadUint32(&s.halted) {
	case 0:
		return nil
	case 2:
		return ErrInvariantViolation
	}
	if s.reason.Err != nil {
		return s.reason.Err
	}
	return ErrInvariantViolation
}
