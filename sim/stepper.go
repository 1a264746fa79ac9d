package sim

import (
	"context"

	"sharedadc/core"
)

// Stepper drives an acquisition and its simulated converter from a tick
// clock. Each step advances time, lets the hardware finish what is due, then
// runs the background context.
type Stepper struct {
	Clock *core.TickClock
	Conv  *Converter
	Acq   *core.Acquisition

	// Step is the number of ticks per iteration.
	Step uint32

	// SpuriousEvery injects a completion signal with nothing finished every
	// n steps. Zero disables injection.
	SpuriousEvery int

	steps int
}

// StepOnce runs one iteration.
func (s *Stepper) StepOnce() {
	now := s.Clock.Advance(s.Step)
	s.Conv.Advance(now)
	s.Acq.Poll()

	s.steps++
	if s.SpuriousEvery > 0 && s.steps%s.SpuriousEvery == 0 {
		s.Conv.Spurious()
	}
}

// Run starts the acquisition and steps it n times, or until ctx is done or
// the subsystem halts. The acquisition is stopped and drained on return.
func (s *Stepper) Run(ctx context.Context, n int) error {
	s.Acq.Start()
	defer s.drain()

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.StepOnce()
		if s.Acq.Halted() {
			return s.Acq.Err()
		}
	}
	return nil
}

// drain stops the scheduler and lets the in-flight transfer finish unless
// it is stalled.
func (s *Stepper) drain() {
	s.Acq.Stop()
	for i := 0; i < 16 && !s.Acq.Quiescent() && s.Conv.Busy(); i++ {
		s.Conv.Advance(s.Clock.Advance(s.Step))
	}
}

// Steps returns the number of iterations run so far.
func (s *Stepper) Steps() int {
	return s.steps
}
