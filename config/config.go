// Package config loads the YAML description of an acquisition: its units,
// cadence, simulation knobs and telemetry outputs.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sharedadc/core"
)

type Config struct {
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ---- ACQUISITION ----

type AcquisitionConfig struct {
	ClockHz   uint32       `yaml:"clock_hz"`   // timer ticks per second
	Tick      uint32       `yaml:"tick"`       // scheduler cadence in ticks; 0 derives it
	MissLimit int          `yaml:"miss_limit"` // 0 default, negative disables escalation
	Units     []UnitConfig `yaml:"units"`
}

type UnitConfig struct {
	Name       string  `yaml:"name"`
	Channels   []uint8 `yaml:"channels"`
	SampleTime string  `yaml:"sample_time"` // ADC cycles, e.g. "28.5"
	BufferLen  int     `yaml:"buffer_len"`  // samples; 0 means one scan
	Period     uint32  `yaml:"period"`      // ticks; 0 means tick * unit count
}

// ---- SIMULATION ----

type SimulationConfig struct {
	TransferTicks uint32      `yaml:"transfer_ticks"`
	Steps         int         `yaml:"steps"`
	Stall         StallConfig `yaml:"stall"`
	SpuriousEvery int         `yaml:"spurious_every"`
}

// StallConfig holds up one transfer of the named unit. Extra 0 stalls it
// for the rest of the run.
type StallConfig struct {
	Unit  string `yaml:"unit"`
	Extra uint32 `yaml:"extra"`
}

// ---- TELEMETRY ----

type TelemetryConfig struct {
	Log    string        `yaml:"log"`   // none, events, verbose
	Queue  int           `yaml:"queue"` // async sink depth
	Serial *SerialConfig `yaml:"serial"`
	Modbus *ModbusConfig `yaml:"modbus"`
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type ModbusConfig struct {
	Endpoint    string `yaml:"endpoint"`
	SlaveID     uint8  `yaml:"slave_id"`
	BaseAddress uint16 `yaml:"base_address"`
	Stride      uint16 `yaml:"stride"`
	TimeoutMs   int    `yaml:"timeout_ms"`
}

// Load reads, parses and defaults a configuration file. It does not
// validate; call Validate before use.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML, rejecting unknown keys, and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	if cfg.Acquisition.ClockHz == 0 {
		cfg.Acquisition.ClockHz = core.TimerFreq
	}
	for i := range cfg.Acquisition.Units {
		u := &cfg.Acquisition.Units[i]
		if u.SampleTime == "" {
			u.SampleTime = core.SampleTime28_5.String()
		}
	}

	if cfg.Simulation.TransferTicks == 0 {
		cfg.Simulation.TransferTicks = cfg.Acquisition.ClockHz / 1000 // 1ms
	}
	if cfg.Simulation.Steps == 0 {
		cfg.Simulation.Steps = 1000
	}

	if cfg.Telemetry.Log == "" {
		cfg.Telemetry.Log = "events"
	}
	if cfg.Telemetry.Queue == 0 {
		cfg.Telemetry.Queue = 64
	}
	if s := cfg.Telemetry.Serial; s != nil && s.Baud == 0 {
		s.Baud = 250000
	}
	if m := cfg.Telemetry.Modbus; m != nil {
		if m.SlaveID == 0 {
			m.SlaveID = 1
		}
		if m.Stride == 0 {
			m.Stride = 32
		}
		if m.TimeoutMs == 0 {
			m.TimeoutMs = 1000
		}
	}
}

// Default returns a two-unit configuration at the default timer rate: a
// thermistor pair sampled every 100ms and a single input every 50ms.
func Default() *Config {
	cfg := &Config{
		Acquisition: AcquisitionConfig{
			Units: []UnitConfig{
				{Name: "thermistors", Channels: []uint8{0, 1}, SampleTime: "239.5", Period: core.TimerFreq / 10},
				{Name: "current", Channels: []uint8{4}, BufferLen: 8, SampleTime: "28.5", Period: core.TimerFreq / 20},
			},
		},
	}
	applyDefaults(cfg)
	return cfg
}

// Specs converts the unit list for core.New. The config must be valid.
func (c *Config) Specs() []core.UnitSpec {
	specs := make([]core.UnitSpec, len(c.Acquisition.Units))
	for i, u := range c.Acquisition.Units {
		st, _ := core.ParseSampleTime(u.SampleTime)
		specs[i] = core.UnitSpec{
			Name:      u.Name,
			Config:    core.ChannelConfig{Channels: u.Channels, SampleTime: st},
			BufferLen: u.BufferLen,
			Period:    u.Period,
		}
	}
	return specs
}

// Options returns the scheduler options; sinks are wired by the caller.
func (c *Config) Options() core.Options {
	return core.Options{
		Tick:      c.Acquisition.Tick,
		MissLimit: c.Acquisition.MissLimit,
	}
}

// EffectiveTick returns the cadence core.New will use.
func (c *Config) EffectiveTick() uint32 {
	if c.Acquisition.Tick != 0 {
		return c.Acquisition.Tick
	}
	n := uint32(len(c.Acquisition.Units))
	if n == 0 {
		return 0
	}
	var shortest uint32
	for _, u := range c.Acquisition.Units {
		if u.Period != 0 && (shortest == 0 || u.Period < shortest) {
			shortest = u.Period
		}
	}
	return shortest / n
}

// UnitIndex returns the position of the named unit, or -1.
func (c *Config) UnitIndex(name string) int {
	for i, u := range c.Acquisition.Units {
		if u.Name == name {
			return i
		}
	}
	return -1
}
