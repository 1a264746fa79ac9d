//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"
	"sync"
	"sync/atomic"

	"sharedadc/core"
)

// tempChannel is the internal temperature sensor input.
const tempChannel = 4

var (
	errConverterBusy = errors.New("adc: transfer in progress")
	errNoSequence    = errors.New("adc: no sequence programmed")
	errBadChannel    = errors.New("adc: unsupported channel")
)

type rpTransfer struct {
	buf  []uint16
	seq  []uint8
	done uint32 // atomic
}

func (t *rpTransfer) Done() bool { return atomic.LoadUint32(&t.done) != 0 }

func (t *rpTransfer) Wait() ([]uint16, error) {
	if !t.Done() {
		return nil, errConverterBusy
	}
	return t.buf, nil
}

// RpConverter implements core.Converter on the RP2040's on-chip ADC. The
// conversions of a transfer run from Service in the main loop, standing in
// for the DMA engine; the completion callback runs there too.
type RpConverter struct {
	mu         sync.Mutex
	onComplete func()
	seq        []uint8
	active     *rpTransfer

	// Per-channel TinyGo ADC handles for external inputs 0-3.
	channels [tempChannel]*machine.ADC
}

// NewRpConverter initializes the ADC peripheral.
func NewRpConverter() *RpConverter {
	machine.InitADC()
	return &RpConverter{}
}

// Listen registers the completion callback.
func (d *RpConverter) Listen(onComplete func()) {
	d.mu.Lock()
	d.onComplete = onComplete
	d.mu.Unlock()
}

// Reconfigure programs the regular sequence. The RP2040 has a fixed sample
// time so cfg.SampleTime is ignored.
func (d *RpConverter) Reconfigure(cfg core.ChannelConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		return errConverterBusy
	}
	for _, ch := range cfg.Channels {
		if err := d.configureChannel(ch); err != nil {
			return err
		}
	}
	d.seq = append(d.seq[:0], cfg.Channels...)
	return nil
}

// configureChannel sets up the pin mux for one input.
func (d *RpConverter) configureChannel(ch uint8) error {
	if ch == tempChannel {
		rp.ADC.CS.SetBits(rp.ADC_CS_TS_EN)
		return nil
	}
	if ch > tempChannel {
		return errBadChannel
	}
	if d.channels[ch] != nil {
		return nil
	}

	pins := [tempChannel]machine.Pin{machine.ADC0, machine.ADC1, machine.ADC2, machine.ADC3}
	adc := &machine.ADC{Pin: pins[ch]}
	if err := adc.Configure(machine.ADCConfig{}); err != nil {
		return err
	}
	d.channels[ch] = adc
	return nil
}

// StartTransfer queues a scan of the programmed sequence into buf.
func (d *RpConverter) StartTransfer(buf []uint16) (core.Transfer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active != nil {
		return nil, errConverterBusy
	}
	if len(d.seq) == 0 {
		return nil, errNoSequence
	}
	t := &rpTransfer{buf: buf, seq: append([]uint8(nil), d.seq...)}
	d.active = t
	return t, nil
}

// Service runs the queued transfer to completion. It reports whether one
// finished.
func (d *RpConverter) Service() bool {
	d.mu.Lock()
	t := d.active
	d.mu.Unlock()
	if t == nil {
		return false
	}

	n := len(t.seq)
	for i := range t.buf {
		t.buf[i] = d.read(t.seq[i%n])
	}

	d.mu.Lock()
	d.active = nil
	cb := d.onComplete
	d.mu.Unlock()

	atomic.StoreUint32(&t.done, 1)
	if cb != nil {
		cb()
	}
	return true
}

// read returns a raw 12-bit sample (0-4095).
func (d *RpConverter) read(ch uint8) uint16 {
	if ch == tempChannel {
		return rawInternalTemp()
	}
	// TinyGo scales to 16 bits; drop back to the converter's resolution.
	return d.channels[ch].Get() >> 4
}

// rawInternalTemp returns the 12-bit raw ADC value from the internal temp sensor (0–4095).
func rawInternalTemp() uint16 {
	// Select ADC channel 4 (internal temperature sensor)
	rp.ADC.CS.ReplaceBits(
		uint32(tempChannel)<<rp.ADC_CS_AINSEL_Pos,
		rp.ADC_CS_AINSEL_Msk,
		0,
	)

	// Start a single conversion
	rp.ADC.CS.SetBits(rp.ADC_CS_START_ONCE)

	// Wait until conversion is ready
	for !rp.ADC.CS.HasBits(rp.ADC_CS_READY) {
	}

	return uint16(rp.ADC.RESULT.Get())
}
