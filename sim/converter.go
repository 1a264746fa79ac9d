// Package sim provides a simulated converter and DMA channel driven by a
// tick clock. It stands in for the hardware in tests and on the host.
package sim

import (
	"errors"
	"sync"
	"sync/atomic"

	"sharedadc/core"
)

// ErrBusy is returned by StartTransfer while a transfer is still running.
var ErrBusy = errors.New("sim: converter busy")

// FullScale is the largest simulated sample (12-bit converter).
const FullScale = 4095

// SampleValue is the deterministic reading of channel ch on its n-th
// conversion: a sawtooth offset per channel.
func SampleValue(ch uint8, n uint32) uint16 {
	return uint16((uint32(ch)*512 + n*37) % (FullScale + 1))
}

type transfer struct {
	buf     []uint16
	cfg     core.ChannelConfig
	due     uint32
	stalled bool
	done    uint32 // atomic
	err     error
}

func (t *transfer) Done() bool { return atomic.LoadUint32(&t.done) != 0 }

func (t *transfer) Wait() ([]uint16, error) {
	if !t.Done() {
		return nil, ErrBusy
	}
	return t.buf, t.err
}

type stall struct {
	match func(core.ChannelConfig) bool
	extra uint32
}

// Converter simulates one ADC with one DMA channel. A transfer takes a fixed
// number of ticks; Advance finishes it and raises the completion callback.
type Converter struct {
	mu            sync.Mutex
	clock         core.Clock
	transferTicks uint32
	onComplete    func()

	cfg       core.ChannelConfig
	active    *transfer
	stall     *stall
	failStart error
	failWait  error
	counts    map[uint8]uint32

	started   uint32
	finished  uint32
	spurious  uint32
	reprogram uint32
}

// NewConverter returns a converter whose transfers take transferTicks ticks
// of clock.
func NewConverter(clock core.Clock, transferTicks uint32) *Converter {
	return &Converter{
		clock:         clock,
		transferTicks: transferTicks,
		counts:        make(map[uint8]uint32),
	}
}

// Listen registers the transfer complete callback.
func (c *Converter) Listen(onComplete func()) {
	c.mu.Lock()
	c.onComplete = onComplete
	c.mu.Unlock()
}

// Reconfigure programs the regular sequence.
func (c *Converter) Reconfigure(cfg core.ChannelConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return ErrBusy
	}
	c.cfg = cfg
	c.reprogram++
	return nil
}

// StartTransfer starts a scan of the programmed sequence into buf.
func (c *Converter) StartTransfer(buf []uint16) (core.Transfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrBusy
	}
	if err := c.failStart; err != nil {
		c.failStart = nil
		return nil, err
	}

	t := &transfer{
		buf: buf,
		cfg: c.cfg,
		due: c.clock.Now() + c.transferTicks,
		err: c.failWait,
	}
	c.failWait = nil

	if s := c.stall; s != nil && s.match(c.cfg) {
		c.stall = nil
		if s.extra == 0 {
			t.stalled = true
		} else {
			t.due += s.extra
		}
	}

	c.active = t
	c.started++
	return t, nil
}

// Advance finishes the running transfer if it is due at now. The completion
// callback runs outside the converter lock. It reports whether a transfer
// finished.
func (c *Converter) Advance(now uint32) bool {
	c.mu.Lock()
	t := c.active
	if t == nil || t.stalled || int32(now-t.due) < 0 {
		c.mu.Unlock()
		return false
	}
	c.active = nil

	n := len(t.cfg.Channels)
	if n > 0 {
		for i := range t.buf {
			ch := t.cfg.Channels[i%n]
			t.buf[i] = SampleValue(ch, c.counts[ch])
			c.counts[ch]++
		}
	}
	c.finished++
	cb := c.onComplete
	c.mu.Unlock()

	atomic.StoreUint32(&t.done, 1)
	if cb != nil {
		cb()
	}
	return true
}

// Stall makes the next transfer whose sequence matches take extra ticks
// longer. An extra of zero stalls it until Release.
func (c *Converter) Stall(match func(core.ChannelConfig) bool, extra uint32) {
	c.mu.Lock()
	c.stall = &stall{match: match, extra: extra}
	c.mu.Unlock()
}

// Release lets a stalled transfer finish on the next Advance.
func (c *Converter) Release() {
	c.mu.Lock()
	if c.active != nil && c.active.stalled {
		c.active.stalled = false
		c.active.due = c.clock.Now()
	}
	c.stall = nil
	c.mu.Unlock()
}

// Spurious raises the completion callback without a finished transfer.
func (c *Converter) Spurious() {
	c.mu.Lock()
	cb := c.onComplete
	c.spurious++
	c.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// FailNextStart makes the next StartTransfer return err.
func (c *Converter) FailNextStart(err error) {
	c.mu.Lock()
	c.failStart = err
	c.mu.Unlock()
}

// FailNextTransfer makes the next started transfer finish with err.
func (c *Converter) FailNextTransfer(err error) {
	c.mu.Lock()
	c.failWait = err
	c.mu.Unlock()
}

// Busy reports whether a transfer is running.
func (c *Converter) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Stats holds converter counters.
type Stats struct {
	Started      uint32
	Finished     uint32
	Spurious     uint32
	Reprogrammed uint32
}

// Stats returns a snapshot of the converter counters.
func (c *Converter) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Started:      c.started,
		Finished:     c.finished,
		Spurious:     c.spurious,
		Reprogrammed: c.reprogram,
	}
}
