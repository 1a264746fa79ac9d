// Package telemetry turns acquisition events into something a host can
// read: protocol frames on a byte stream, or Modbus holding registers.
// Sinks here may block on I/O and belong behind a core.AsyncSink.
package telemetry

import (
	"io"
	"sync"

	"sharedadc/core"
	"sharedadc/protocol"
)

// FrameSink writes every event except EvtArmed as protocol frames.
type FrameSink struct {
	w *protocol.FrameWriter

	mu      sync.Mutex
	errors  uint32
	lastErr error
}

// NewFrameSink frames events onto out.
func NewFrameSink(out io.Writer) *FrameSink {
	return &FrameSink{w: protocol.NewFrameWriter(out)}
}

// Announce sends the hello frame followed by one description per unit.
func (s *FrameSink) Announce(acq *core.Acquisition) error {
	n := acq.Units()
	if err := s.w.WriteHello(protocol.Hello{Version: protocol.Version, Units: uint8(n)}); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		id := core.UnitID(i)
		info := protocol.UnitInfo{
			Unit:     uint8(id),
			Name:     acq.UnitName(id),
			Channels: acq.UnitConfig(id).Channels,
			Period:   acq.Scheduler().Entry(id).Period,
		}
		if err := s.w.WriteUnitInfo(info); err != nil {
			return err
		}
	}
	return nil
}

// Report writes the event. Write errors are counted, not returned.
func (s *FrameSink) Report(ev core.Event) {
	var err error
	switch ev.Kind {
	case core.EvtArmed:
		return
	case core.EvtCompleted:
		_, err = s.w.WriteSamples(uint8(ev.Unit), ev.Seq, ev.Clock, ev.Samples)
	default:
		err = s.w.WriteEvent(protocol.Event{
			Kind:   uint8(ev.Kind),
			Unit:   uint8(ev.Unit),
			Clock:  ev.Clock,
			Seq:    ev.Seq,
			Misses: ev.Misses,
		})
	}
	if err != nil {
		s.mu.Lock()
		s.errors++
		s.lastErr = err
		s.mu.Unlock()
	}
}

// Frames returns the number of frames written.
func (s *FrameSink) Frames() uint32 {
	return s.w.Frames()
}

// Errors returns the number of failed writes and the last error.
func (s *FrameSink) Errors() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors, s.lastErr
}
