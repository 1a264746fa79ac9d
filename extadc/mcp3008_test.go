package extadc

import (
	"errors"
	"sync"
	"testing"
	"time"

	"sharedadc/core"
)

// fakeBus answers each conversion with 100*channel + the number of reads of
// that channel so far.
type fakeBus struct {
	mu     sync.Mutex
	reads  map[uint8]int
	failAt int
	calls  int
}

func (b *fakeBus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls++
	if b.failAt != 0 && b.calls == b.failAt {
		return errors.New("bus error")
	}
	if len(w) != 3 || w[0] != 0x01 || w[1]&0x80 == 0 {
		return errors.New("not a single-ended read")
	}
	ch := (w[1] >> 4) & 0x07
	v := uint16(100*int(ch) + b.reads[ch])
	b.reads[ch]++
	r[0] = 0xFF
	r[1] = 0xFC | byte(v>>8)&0x03
	r[2] = byte(v)
	return nil
}

func (b *fakeBus) Transfer(w byte) (byte, error) { return 0, nil }

type fakePin struct {
	mu  sync.Mutex
	low bool
}

func (p *fakePin) High() { p.mu.Lock(); p.low = false; p.mu.Unlock() }
func (p *fakePin) Low()  { p.mu.Lock(); p.low = true; p.mu.Unlock() }

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer did not complete")
	}
}

func TestMCP3008Scan(t *testing.T) {
	bus := &fakeBus{reads: map[uint8]int{}}
	cs := &fakePin{}
	adc := NewMCP3008(bus, cs)

	done := make(chan struct{}, 1)
	adc.Listen(func() { done <- struct{}{} })

	if err := adc.Reconfigure(core.ChannelConfig{Channels: []uint8{2, 7}}); err != nil {
		t.Fatalf("Reconfigure failed: %v", err)
	}

	buf := make([]uint16, 4)
	xfer, err := adc.StartTransfer(buf)
	if err != nil {
		t.Fatalf("StartTransfer failed: %v", err)
	}
	waitDone(t, done)

	got, err := xfer.Wait()
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	want := []uint16{200, 700, 201, 701}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
	if cs.low {
		t.Error("chip select left asserted")
	}
	if adc.Busy() {
		t.Error("converter still busy after completion")
	}
}

func TestMCP3008Validation(t *testing.T) {
	adc := NewMCP3008(&fakeBus{reads: map[uint8]int{}}, &fakePin{})

	if _, err := adc.StartTransfer(make([]uint16, 1)); !errors.Is(err, ErrNoSequence) {
		t.Errorf("StartTransfer without sequence = %v", err)
	}
	if err := adc.Reconfigure(core.ChannelConfig{Channels: []uint8{8}}); !errors.Is(err, ErrBadChannel) {
		t.Errorf("Reconfigure(8) = %v", err)
	}
}

func TestMCP3008BusError(t *testing.T) {
	adc := NewMCP3008(&fakeBus{reads: map[uint8]int{}, failAt: 2}, &fakePin{})
	done := make(chan struct{}, 1)
	adc.Listen(func() { done <- struct{}{} })

	adc.Reconfigure(core.ChannelConfig{Channels: []uint8{0}})
	xfer, err := adc.StartTransfer(make([]uint16, 3))
	if err != nil {
		t.Fatal(err)
	}
	waitDone(t, done)

	if _, err := xfer.Wait(); err == nil {
		t.Error("bus error was not reported by the transfer")
	}
}

// TestMCP3008WithAcquisition runs the real core against the converter.
func TestMCP3008WithAcquisition(t *testing.T) {
	adc := NewMCP3008(&fakeBus{reads: map[uint8]int{}}, &fakePin{})
	clock := &core.TickClock{}

	var mu sync.Mutex
	completed := map[core.UnitID][]uint16{}
	sink := core.SinkFunc(func(ev core.Event) {
		if ev.Kind != core.EvtCompleted {
			return
		}
		mu.Lock()
		completed[ev.Unit] = append([]uint16(nil), ev.Samples...)
		mu.Unlock()
	})

	specs := []core.UnitSpec{
		{Name: "a", Config: core.ChannelConfig{Channels: []uint8{1}}},
		{Name: "b", Config: core.ChannelConfig{Channels: []uint8{3, 4}}},
	}
	acq, err := core.New(adc, clock, specs, core.Options{Tick: 10, Sink: sink})
	if err != nil {
		t.Fatal(err)
	}
	acq.Start()

	deadline := time.Now().Add(2 * time.Second)
	for acq.Handler().Completed() < 4 && time.Now().Before(deadline) {
		clock.Advance(10)
		acq.Poll()
		time.Sleep(time.Millisecond)
	}
	acq.Stop()

	if acq.Handler().Completed() < 4 {
		t.Fatalf("only %d transfers completed", acq.Handler().Completed())
	}
	mu.Lock()
	defer mu.Unlock()
	if b := completed[1]; len(b) != 2 || b[0]/100 != 3 || b[1]/100 != 4 {
		t.Errorf("unit b samples %v", b)
	}
}
