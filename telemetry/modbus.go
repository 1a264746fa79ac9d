package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"sharedadc/core"
)

// Per-unit register block layout, relative to base + unit*stride.
const (
	SlotSeq     = 0 // low 16 bits of the completed transfer count
	SlotMisses  = 1 // current busy streak
	SlotStatus  = 2 // StatusOK, StatusBusy, ...
	SlotSamples = 3 // first sample of the latest buffer

	// MinStride is the smallest block that holds one sample.
	MinStride = SlotSamples + 1
)

// Unit status codes written to SlotStatus.
const (
	StatusOK             = 0
	StatusBusy           = 1
	StatusConfigError    = 2
	StatusTransferFailed = 3
	StatusHalted         = 4
)

// RegisterWriter is the part of a Modbus client the sink uses.
type RegisterWriter interface {
	WriteRegisters(slaveID uint8, addr uint16, regs []uint16) error
}

// ModbusClient is a single TCP connection to a Modbus server. Requests are
// serialized because the slave id is set per write.
type ModbusClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// ModbusClientConfig selects the server.
type ModbusClientConfig struct {
	Endpoint string
	Timeout  time.Duration
}

// DialModbus connects to a Modbus TCP server.
func DialModbus(cfg ModbusClientConfig) (*ModbusClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("telemetry modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("telemetry modbus: connect %s: %w", cfg.Endpoint, err)
	}

	return &ModbusClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// Close closes the connection.
func (c *ModbusClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteRegisters writes holding registers with function code 16.
func (c *ModbusClient) WriteRegisters(slaveID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = slaveID

	_, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), packRegisters(regs))
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

// ModbusLayout places unit blocks in the register map.
type ModbusLayout struct {
	SlaveID uint8
	Base    uint16
	Stride  uint16 // registers per unit, at least MinStride
}

// ModbusSink mirrors the latest state of every unit into holding registers.
type ModbusSink struct {
	client RegisterWriter
	layout ModbusLayout

	mu      sync.Mutex
	writes  uint32
	errors  uint32
	lastErr error
}

// NewModbusSink validates the layout and returns a sink writing through
// client.
func NewModbusSink(client RegisterWriter, layout ModbusLayout) (*ModbusSink, error) {
	if layout.Stride < MinStride {
		return nil, fmt.Errorf("telemetry modbus: stride %d below minimum %d", layout.Stride, MinStride)
	}
	if int(layout.Base)+core.MaxUnits*int(layout.Stride) > 0xFFFF+1 {
		return nil, fmt.Errorf("telemetry modbus: base %d stride %d overflow the register space", layout.Base, layout.Stride)
	}
	return &ModbusSink{client: client, layout: layout}, nil
}

// Report writes the unit block touched by the event.
func (s *ModbusSink) Report(ev core.Event) {
	var regs []uint16

	switch ev.Kind {
	case core.EvtCompleted:
		n := len(ev.Samples)
		if room := int(s.layout.Stride) - SlotSamples; n > room {
			n = room
		}
		regs = make([]uint16, SlotSamples+n)
		regs[SlotSeq] = uint16(ev.Seq)
		regs[SlotStatus] = StatusOK
		copy(regs[SlotSamples:], ev.Samples[:n])
	case core.EvtResourceBusy:
		regs = []uint16{ev.Misses, StatusBusy}
	case core.EvtConfigurationError:
		regs = []uint16{ev.Misses, StatusConfigError}
	case core.EvtTransferFailed:
		regs = []uint16{ev.Misses, StatusTransferFailed}
	case core.EvtInvariantViolation:
		regs = []uint16{ev.Misses, StatusHalted}
	default:
		return
	}

	addr := s.layout.Base + uint16(ev.Unit)*s.layout.Stride
	if ev.Kind != core.EvtCompleted {
		addr += SlotMisses
	}

	err := s.client.WriteRegisters(s.layout.SlaveID, addr, regs)

	s.mu.Lock()
	s.writes++
	if err != nil {
		s.errors++
		s.lastErr = fmt.Errorf("telemetry modbus: unit=%d addr=%d: %w", ev.Unit, addr, err)
	}
	s.mu.Unlock()
}

// Stats returns the number of writes, failed writes and the last error.
func (s *ModbusSink) Stats() (writes, failed uint32, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes, s.errors, s.lastErr
}
