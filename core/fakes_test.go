package core

import (
	"sync"
	"sync/atomic"
)

// fakeTransfer stands in for a DMA transfer; the "hardware" sets done.
type fakeTransfer struct {
	buf  []uint16
	done uint32 // atomic
	err  error
}

func (t *fakeTransfer) Done() bool { return atomic.LoadUint32(&t.done) != 0 }

func (t *fakeTransfer) Wait() ([]uint16, error) { return t.buf, t.err }

// fakeConverter records what the core asks of the shared channel.
type fakeConverter struct {
	mu         sync.Mutex
	onComplete func()
	configs    []ChannelConfig
	pending    *fakeTransfer
	starts     int
	startErr   error
	waitErr    error
	fill       uint16
}

func (c *fakeConverter) Listen(fn func()) { c.onComplete = fn }

func (c *fakeConverter) Reconfigure(cfg ChannelConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs = append(c.configs, cfg)
	return nil
}

func (c *fakeConverter) StartTransfer(buf []uint16) (Transfer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return nil, c.startErr
	}
	c.starts++
	c.pending = &fakeTransfer{buf: buf, err: c.waitErr}
	return c.pending, nil
}

// finish completes the pending transfer, filling every sample with the next
// fill value, and raises the completion "interrupt". It returns false if
// nothing was pending.
func (c *fakeConverter) finish() bool {
	c.mu.Lock()
	t := c.pending
	c.pending = nil
	if t != nil {
		c.fill++
		for i := range t.buf {
			t.buf[i] = c.fill
		}
	}
	c.mu.Unlock()

	if t == nil {
		return false
	}
	atomic.StoreUint32(&t.done, 1)
	c.onComplete()
	return true
}

func (c *fakeConverter) hasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// recorder is a Sink that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Report(ev Event) {
	if ev.Samples != nil {
		ev.Samples = append([]uint16(nil), ev.Samples...)
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) of(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) armedOrder() []UnitID {
	var ids []UnitID
	for _, ev := range r.of(EvtArmed) {
		ids = append(ids, ev.Unit)
	}
	return ids
}

func pinGroup(channels ...uint8) ChannelConfig {
	return ChannelConfig{Channels: channels, SampleTime: SampleTime28_5}
}

// newTestAcquisition builds n two-channel units on distinct pins.
func newTestAcquisition(n int, opts Options, periods ...uint32) (*Acquisition, *fakeConverter, *TickClock, *recorder) {
	conv := &fakeConverter{}
	clock := &TickClock{}
	rec := &recorder{}
	opts.Sink = rec

	specs := make([]UnitSpec, n)
	for i := range specs {
		specs[i] = UnitSpec{
			Name:   "group" + itoa(i),
			Config: pinGroup(uint8(2*i), uint8(2*i+1)),
		}
		if i < len(periods) {
			specs[i].Period = periods[i]
		}
	}

	acq, err := New(conv, clock, specs, opts)
	if err != nil {
		panic(err)
	}
	return acq, conv, clock, rec
}

// step advances the clock by dt, runs the background context and lets the
// hardware finish whatever was armed.
func step(acq *Acquisition, conv *fakeConverter, clock *TickClock, dt uint32) {
	clock.Advance(dt)
	acq.Poll()
	conv.finish()
}
