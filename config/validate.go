package config

import (
	"fmt"
	"net"

	"sharedadc/core"
	"sharedadc/telemetry"
)

// Validate performs structural validation only.
// It does not mutate the config.
func (c *Config) Validate() error {
	if err := c.validateAcquisition(); err != nil {
		return err
	}
	if err := c.validateSimulation(); err != nil {
		return err
	}
	return c.validateTelemetry()
}

func (c *Config) validateAcquisition() error {
	a := &c.Acquisition

	if a.ClockHz == 0 {
		return fmt.Errorf("acquisition.clock_hz must be > 0")
	}
	if len(a.Units) == 0 {
		return fmt.Errorf("acquisition.units must not be empty")
	}
	if len(a.Units) > core.MaxUnits {
		return fmt.Errorf("acquisition.units: %d units, at most %d allowed", len(a.Units), core.MaxUnits)
	}

	names := make(map[string]struct{}, len(a.Units))
	for i, u := range a.Units {
		if u.Name == "" {
			return fmt.Errorf("acquisition.units[%d].name must not be empty", i)
		}
		if _, dup := names[u.Name]; dup {
			return fmt.Errorf("acquisition.units[%d]: duplicate name %q", i, u.Name)
		}
		names[u.Name] = struct{}{}

		if len(u.Channels) == 0 {
			return fmt.Errorf("acquisition.units[%d].channels must not be empty", i)
		}
		if len(u.Channels) > core.MaxSequence {
			return fmt.Errorf("acquisition.units[%d].channels: %d channels, at most %d allowed",
				i, len(u.Channels), core.MaxSequence)
		}
		for _, ch := range u.Channels {
			if ch > core.MaxChannel {
				return fmt.Errorf("acquisition.units[%d].channels: channel %d out of range 0-%d",
					i, ch, core.MaxChannel)
			}
		}

		if _, ok := core.ParseSampleTime(u.SampleTime); !ok {
			return fmt.Errorf("acquisition.units[%d].sample_time: unknown value %q", i, u.SampleTime)
		}
		if u.BufferLen < 0 {
			return fmt.Errorf("acquisition.units[%d].buffer_len must be >= 0", i)
		}
		if u.BufferLen%len(u.Channels) != 0 {
			return fmt.Errorf("acquisition.units[%d].buffer_len %d is not a multiple of %d channels",
				i, u.BufferLen, len(u.Channels))
		}
	}

	tick := c.EffectiveTick()
	if tick == 0 {
		return fmt.Errorf("acquisition: tick or a unit period is required")
	}

	// One unit is armed per tick at most, so the requested rates must fit.
	n := uint64(len(a.Units))
	var load float64
	for i, u := range a.Units {
		period := uint64(u.Period)
		if period == 0 {
			period = uint64(tick) * n
		}
		if period < uint64(tick) {
			return fmt.Errorf("acquisition.units[%d].period %d is shorter than tick %d", i, period, tick)
		}
		load += float64(tick) / float64(period)
	}
	if load > 1.0+1e-9 {
		return fmt.Errorf("acquisition: unit periods need %.2f activations per tick, at most 1 possible", load)
	}

	return nil
}

func (c *Config) validateSimulation() error {
	s := &c.Simulation

	if s.Steps < 0 {
		return fmt.Errorf("simulation.steps must be >= 0")
	}
	if s.SpuriousEvery < 0 {
		return fmt.Errorf("simulation.spurious_every must be >= 0")
	}
	if s.Stall.Unit != "" && c.UnitIndex(s.Stall.Unit) < 0 {
		return fmt.Errorf("simulation.stall.unit: unknown unit %q", s.Stall.Unit)
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	t := &c.Telemetry

	switch t.Log {
	case "none", "events", "verbose":
	default:
		return fmt.Errorf("telemetry.log: unknown value %q", t.Log)
	}
	if t.Queue <= 0 {
		return fmt.Errorf("telemetry.queue must be > 0")
	}

	if s := t.Serial; s != nil {
		if s.Device == "" {
			return fmt.Errorf("telemetry.serial.device must not be empty")
		}
		if s.Baud <= 0 {
			return fmt.Errorf("telemetry.serial.baud must be > 0")
		}
	}

	if m := t.Modbus; m != nil {
		if m.Endpoint == "" {
			return fmt.Errorf("telemetry.modbus.endpoint must not be empty")
		}
		if _, _, err := net.SplitHostPort(m.Endpoint); err != nil {
			return fmt.Errorf("telemetry.modbus.endpoint: %w", err)
		}
		if m.TimeoutMs <= 0 {
			return fmt.Errorf("telemetry.modbus.timeout_ms must be > 0")
		}

		if m.Stride < telemetry.MinStride {
			return fmt.Errorf("telemetry.modbus.stride %d below minimum %d", m.Stride, telemetry.MinStride)
		}
		if uint32(m.BaseAddress)+core.MaxUnits*uint32(m.Stride) > 0x10000 {
			return fmt.Errorf("telemetry.modbus: base %d stride %d overflow the register space",
				m.BaseAddress, m.Stride)
		}
	}
	return nil
}
