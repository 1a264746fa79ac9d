// Acquisition units: one pin group, one sample buffer, one place in the
// round-robin order of the shared converter.
package core

import "errors"

// UnitID identifies an acquisition unit. It is also the unit's position in
// the round-robin order.
type UnitID uint8

// MaxUnits is the largest number of units one channel can multiplex.
const MaxUnits = 255

// MaxSequence is the longest regular conversion sequence a pin group may
// program.
const MaxSequence = 16

// MaxChannel is the highest converter input index.
const MaxChannel = 17

// SampleTime selects the per-channel sampling time in ADC clock cycles.
type SampleTime uint8

const (
	SampleTime1_5 SampleTime = iota
	SampleTime7_5
	SampleTime13_5
	SampleTime28_5
	SampleTime41_5
	SampleTime55_5
	SampleTime71_5
	SampleTime239_5
)

var sampleTimeNames = [...]string{"1.5", "7.5", "13.5", "28.5", "41.5", "55.5", "71.5", "239.5"}

func (s SampleTime) String() string {
	if int(s) < len(sampleTimeNames) {
		return sampleTimeNames[s]
	}
	return "invalid"
}

// ParseSampleTime maps a cycle count such as "28.5" to a SampleTime.
func ParseSampleTime(name string) (SampleTime, bool) {
	for i, n := range sampleTimeNames {
		if n == name {
			return SampleTime(i), true
		}
	}
	return 0, false
}

// ChannelConfig describes which converter inputs a unit samples and in what
// order. It is immutable once the unit is built.
type ChannelConfig struct {
	Channels   []uint8
	SampleTime SampleTime
}

func (c ChannelConfig) equal(o ChannelConfig) bool {
	if c.SampleTime != o.SampleTime || len(c.Channels) != len(o.Channels) {
		return false
	}
	for i := range c.Channels {
		if c.Channels[i] != o.Channels[i] {
			return false
		}
	}
	return true
}

// UnitState is the lifecycle state of a unit.
type UnitState uint8

const (
	UnitIdle UnitState = iota
	UnitArmed
	UnitRetired
)

func (s UnitState) String() string {
	switch s {
	case UnitIdle:
		return "idle"
	case UnitArmed:
		return "armed"
	case UnitRetired:
		return "retired"
	default:
		return "invalid"
	}
}

// Unit is an acquisition unit. Whoever currently holds the pointer (the
// register, the scheduler while arming, the transfer slot, or the
// completion handler) owns it exclusively.
type Unit struct {
	ID     UnitID
	Name   string
	Config ChannelConfig
	Buffer []uint16
	State  UnitState

	// Seq counts completed transfers.
	Seq uint32
}

var (
	errNoChannels   = errors.New("pin group has no channels")
	errLongSequence = errors.New("pin group sequence too long")
	errBadChannel   = errors.New("channel out of range")
	errBadSample    = errors.New("invalid sample time")
	errBufferLen    = errors.New("buffer length must be a positive multiple of the channel count")
)

// NewUnit builds an idle unit with a zeroed buffer of bufLen samples. A zero
// bufLen allocates one scan.
func NewUnit(id UnitID, name string, cfg ChannelConfig, bufLen int) (*Unit, error) {
	n := len(cfg.Channels)
	if n == 0 {
		return nil, unitErr(id, errNoChannels)
	}
	if n > MaxSequence {
		return nil, unitErr(id, errLongSequence)
	}
	for _, ch := range cfg.Channels {
		if ch > MaxChannel {
			return nil, unitErr(id, errBadChannel)
		}
	}
	if int(cfg.SampleTime) >= len(sampleTimeNames) {
		return nil, unitErr(id, errBadSample)
	}
	if bufLen == 0 {
		bufLen = n
	}
	if bufLen < 0 || bufLen%n != 0 {
		return nil, unitErr(id, errBufferLen)
	}

	channels := make([]uint8, n)
	copy(channels, cfg.Channels)

	return &Unit{
		ID:     id,
		Name:   name,
		Config: ChannelConfig{Channels: channels, SampleTime: cfg.SampleTime},
		Buffer: make([]uint16, bufLen),
		State:  UnitIdle,
	}, nil
}

// Scans returns how many full passes over the sequence fit in the buffer.
func (u *Unit) Scans() int {
	return len(u.Buffer) / len(u.Config.Channels)
}
