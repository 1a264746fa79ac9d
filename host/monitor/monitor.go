// Package monitor decodes the telemetry stream of an acquisition device:
// unit descriptions, reassembled sample buffers and scheduling events.
package monitor

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"sharedadc/core"
	"sharedadc/host/serial"
	"sharedadc/protocol"
)

// Transfer is one completed sample buffer, reassembled from its chunks.
type Transfer struct {
	Unit   uint8
	Seq    uint32
	Clock  uint32
	Values []uint16
}

// UnitStats is what the monitor knows about one unit.
type UnitStats struct {
	ID       uint8
	Name     string
	Channels []uint8
	Period   uint32

	Transfers    uint32
	Incomplete   uint32 // transfers missing a chunk
	SeqGaps      uint32 // transfers missing entirely
	Busy         uint32
	ConfigErrors uint32
	Failures     uint32
	Misses       uint16 // streak reported by the last busy event

	LastSeq   uint32
	LastClock uint32
	Last      []uint16

	seqValid bool // LastSeq belongs to the current device session
}

type pending struct {
	seq    uint32
	clock  uint32
	values []uint16
}

// Monitor represents a connection to an acquisition device
type Monitor struct {
	mu sync.Mutex

	port   io.ReadCloser
	reader *protocol.FrameReader

	// Device state from the hello frame
	version   string
	announced uint8

	units   map[uint8]*UnitStats
	partial map[uint8]*pending

	unexpected  uint32
	halted      bool
	stopped     bool
	parseErrors uint32

	// OnTransfer is called for every complete buffer, outside the lock.
	OnTransfer func(Transfer)

	// OnEvent is called for every event frame, outside the lock.
	OnEvent func(protocol.Event)
}

// NewMonitor creates a monitor with no input attached
func NewMonitor() *Monitor {
	return &Monitor{
		units:   make(map[uint8]*UnitStats),
		partial: make(map[uint8]*pending),
	}
}

// Connect opens device with the default serial settings and attaches it
func (m *Monitor) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig opens a serial port with a custom config
func (m *Monitor) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	port.Flush()
	m.Attach(port)
	return nil
}

// Attach starts decoding frames from r. If r is an io.Closer it is closed
// by Close.
func (m *Monitor) Attach(r io.Reader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := r.(io.ReadCloser); ok {
		m.port = c
	}
	m.reader = protocol.NewFrameReader(r, 256)
}

// Close stops the reader and closes the port
func (m *Monitor) Close() error {
	m.mu.Lock()
	reader, port := m.reader, m.port
	m.mu.Unlock()

	if reader != nil {
		reader.Close()
	}
	if port != nil {
		return port.Close()
	}
	return nil
}

// Run handles frames until the input ends or ctx is cancelled. It returns
// nil at end of input.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	reader := m.reader
	m.mu.Unlock()
	if reader == nil {
		return fmt.Errorf("monitor: no input attached")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-reader.Frames():
			if !ok {
				return reader.Err()
			}
			if err := m.HandleFrame(msg.Payload); err != nil {
				m.mu.Lock()
				m.parseErrors++
				m.mu.Unlock()
			}
		}
	}
}

// HandleFrame dispatches every message in a frame payload.
func (m *Monitor) HandleFrame(payload []byte) error {
	return protocol.ParseFrame(payload, m.Handle)
}

// Handle applies one decoded message.
func (m *Monitor) Handle(msg interface{}) error {
	switch v := msg.(type) {
	case *protocol.Hello:
		m.mu.Lock()
		m.version = v.Version
		m.announced = v.Units
		m.halted = false
		m.stopped = false
		// The device restarted; sequence numbers begin again.
		for _, u := range m.units {
			u.seqValid = false
			u.Misses = 0
		}
		m.partial = make(map[uint8]*pending)
		m.mu.Unlock()

	case *protocol.UnitInfo:
		m.mu.Lock()
		u := m.unit(v.Unit)
		u.Name = v.Name
		u.Channels = v.Channels
		u.Period = v.Period
		m.mu.Unlock()

	case *protocol.Samples:
		if t, ok := m.samples(v); ok && m.OnTransfer != nil {
			m.OnTransfer(t)
		}

	case *protocol.Event:
		m.event(v)
		if m.OnEvent != nil {
			m.OnEvent(*v)
		}

	default:
		return fmt.Errorf("monitor: unhandled message %T", msg)
	}
	return nil
}

func (m *Monitor) unit(id uint8) *UnitStats {
	u, ok := m.units[id]
	if !ok {
		u = &UnitStats{ID: id, Name: fmt.Sprintf("unit%d", id)}
		m.units[id] = u
	}
	return u
}

func (m *Monitor) samples(s *protocol.Samples) (Transfer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.partial[s.Unit]
	if s.Offset == 0 {
		if p != nil {
			m.unit(s.Unit).Incomplete++
		}
		p = &pending{seq: s.Seq, clock: s.Clock, values: make([]uint16, 0, s.Total)}
		m.partial[s.Unit] = p
	} else if p == nil || p.seq != s.Seq || int(s.Offset) != len(p.values) {
		// Lost the start or a middle chunk; wait for the next buffer.
		if p != nil {
			delete(m.partial, s.Unit)
		}
		m.unit(s.Unit).Incomplete++
		return Transfer{}, false
	}

	p.values = append(p.values, s.Values...)
	if !s.Last() {
		return Transfer{}, false
	}
	delete(m.partial, s.Unit)

	u := m.unit(s.Unit)
	if u.seqValid {
		if d := int32(s.Seq - u.LastSeq); d > 1 {
			u.SeqGaps += uint32(d - 1)
		}
	}
	u.Transfers++
	u.seqValid = true
	u.LastSeq = s.Seq
	u.LastClock = s.Clock
	u.Last = p.values
	u.Misses = 0

	return Transfer{Unit: s.Unit, Seq: s.Seq, Clock: s.Clock, Values: p.values}, true
}

func (m *Monitor) event(e *protocol.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch core.EventKind(e.Kind) {
	case core.EvtResourceBusy:
		u := m.unit(e.Unit)
		u.Busy++
		u.Misses = e.Misses
	case core.EvtConfigurationError:
		m.unit(e.Unit).ConfigErrors++
	case core.EvtTransferFailed:
		m.unit(e.Unit).Failures++
	case core.EvtUnexpectedCompletion:
		m.unexpected++
	case core.EvtInvariantViolation:
		m.halted = true
	case core.EvtStopped:
		m.stopped = true
	}
}

// Units returns a copy of every unit's stats ordered by id.
func (m *Monitor) Units() []UnitStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]UnitStats, 0, len(m.units))
	for _, u := range m.units {
		c := *u
		c.Last = append([]uint16(nil), u.Last...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Unit returns the stats of one unit.
func (m *Monitor) Unit(id uint8) (UnitStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return UnitStats{}, false
	}
	c := *u
	c.Last = append([]uint16(nil), u.Last...)
	return c, true
}

// Lookup finds a unit by name.
func (m *Monitor) Lookup(name string) (UnitStats, bool) {
	for _, u := range m.Units() {
		if u.Name == name {
			return u, true
		}
	}
	return UnitStats{}, false
}

// Status summarizes the device side.
type Status struct {
	Version     string
	Units       uint8
	Unexpected  uint32
	Halted      bool
	Stopped     bool
	ParseErrors uint32
	Link        protocol.DecoderStats
}

// Status returns the device state and link counters.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	st := Status{
		Version:     m.version,
		Units:       m.announced,
		Unexpected:  m.unexpected,
		Halted:      m.halted,
		Stopped:     m.stopped,
		ParseErrors: m.parseErrors,
	}
	reader := m.reader
	m.mu.Unlock()

	if reader != nil {
		st.Link = reader.Stats()
	}
	return st
}

// Reset clears all counters but keeps the unit descriptions.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.units {
		m.units[id] = &UnitStats{ID: u.ID, Name: u.Name, Channels: u.Channels, Period: u.Period}
	}
	m.partial = make(map[uint8]*pending)
	m.unexpected = 0
	m.parseErrors = 0
}
