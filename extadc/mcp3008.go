// Package extadc drives external SPI converters as the shared channel of an
// acquisition. The SPI transaction loop plays the part of the DMA engine.
package extadc

import (
	"errors"
	"sync"
	"sync/atomic"

	"tinygo.org/x/drivers"

	"sharedadc/core"
)

// MCP3008 has eight single-ended inputs with 10-bit resolution.
const (
	MCP3008Channels  = 8
	MCP3008FullScale = 1023
)

var (
	ErrBusy       = errors.New("extadc: conversion in progress")
	ErrBadChannel = errors.New("extadc: channel not available on MCP3008")
	ErrNoSequence = errors.New("extadc: no sequence configured")
)

// Pin is a chip select output; machine.Pin satisfies it.
type Pin interface {
	High()
	Low()
}

type transfer struct {
	buf  []uint16
	done uint32 // atomic
	err  error
}

func (t *transfer) Done() bool { return atomic.LoadUint32(&t.done) != 0 }

func (t *transfer) Wait() ([]uint16, error) {
	if !t.Done() {
		return nil, ErrBusy
	}
	return t.buf, t.err
}

// MCP3008 is a core.Converter backed by an MCP3008 on an SPI bus. A
// transfer scans the programmed sequence into the buffer from its own
// goroutine and raises the completion callback when the buffer is full.
type MCP3008 struct {
	bus drivers.SPI
	cs  Pin

	mu         sync.Mutex
	seq        []uint8
	active     *transfer
	onComplete func()
}

// NewMCP3008 returns a converter on bus with chip select cs. The bus must
// already be configured for mode 0 at no more than 1.35MHz (2.7V supply).
func NewMCP3008(bus drivers.SPI, cs Pin) *MCP3008 {
	cs.High()
	return &MCP3008{bus: bus, cs: cs}
}

// Listen registers the transfer complete callback.
func (m *MCP3008) Listen(onComplete func()) {
	m.mu.Lock()
	m.onComplete = onComplete
	m.mu.Unlock()
}

// Reconfigure sets the channel sequence. The sample time is fixed by the
// SPI clock on this part and is ignored.
func (m *MCP3008) Reconfigure(cfg core.ChannelConfig) error {
	for _, ch := range cfg.Channels {
		if ch >= MCP3008Channels {
			return ErrBadChannel
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return ErrBusy
	}
	m.seq = append(m.seq[:0], cfg.Channels...)
	return nil
}

// StartTransfer starts scanning the sequence into buf.
func (m *MCP3008) StartTransfer(buf []uint16) (core.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrBusy
	}
	if len(m.seq) == 0 {
		return nil, ErrNoSequence
	}

	t := &transfer{buf: buf}
	m.active = t
	seq := append([]uint8(nil), m.seq...)
	go m.run(t, seq)
	return t, nil
}

func (m *MCP3008) run(t *transfer, seq []uint8) {
	for i := range t.buf {
		v, err := m.read(seq[i%len(seq)])
		if err != nil {
			t.err = err
			break
		}
		t.buf[i] = v
	}

	m.mu.Lock()
	m.active = nil
	cb := m.onComplete
	m.mu.Unlock()

	atomic.StoreUint32(&t.done, 1)
	if cb != nil {
		cb()
	}
}

// read performs one single-ended conversion: start bit, SGL/DIFF=1 plus
// the channel in the high nibble, then ten result bits.
func (m *MCP3008) read(ch uint8) (uint16, error) {
	tx := []byte{0x01, (0x08 | ch) << 4, 0x00}
	rx := make([]byte, 3)

	m.cs.Low()
	err := m.bus.Tx(tx, rx)
	m.cs.High()
	if err != nil {
		return 0, err
	}
	return uint16(rx[1]&0x03)<<8 | uint16(rx[2]), nil
}

// Busy reports whether a transfer is running.
func (m *MCP3008) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}
