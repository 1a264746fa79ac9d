package sim

import (
	"context"
	"errors"
	"testing"

	"sharedadc/core"
)

func newSim(t *testing.T, transferTicks uint32, specs ...core.UnitSpec) (*Stepper, *core.TickClock, *Converter) {
	t.Helper()
	clock := &core.TickClock{}
	conv := NewConverter(clock, transferTicks)
	acq, err := core.New(conv, clock, specs, core.Options{Tick: 10, MissLimit: 4})
	if err != nil {
		t.Fatalf("core.New failed: %v", err)
	}
	return &Stepper{Clock: clock, Conv: conv, Acq: acq, Step: 10}, clock, conv
}

func unit(name string, period uint32, channels ...uint8) core.UnitSpec {
	return core.UnitSpec{
		Name:   name,
		Config: core.ChannelConfig{Channels: channels, SampleTime: core.SampleTime55_5},
		Period: period,
	}
}

func TestConverterTransferTiming(t *testing.T) {
	clock := &core.TickClock{}
	conv := NewConverter(clock, 25)

	completions := 0
	conv.Listen(func() { completions++ })
	conv.Reconfigure(core.ChannelConfig{Channels: []uint8{3, 7}})

	buf := make([]uint16, 4)
	xfer, err := conv.StartTransfer(buf)
	if err != nil {
		t.Fatalf("StartTransfer failed: %v", err)
	}
	if _, err := conv.StartTransfer(buf); !errors.Is(err, ErrBusy) {
		t.Errorf("second StartTransfer = %v, want ErrBusy", err)
	}
	if err := conv.Reconfigure(core.ChannelConfig{Channels: []uint8{1}}); !errors.Is(err, ErrBusy) {
		t.Errorf("Reconfigure during transfer = %v, want ErrBusy", err)
	}

	if conv.Advance(24) || xfer.Done() {
		t.Fatal("transfer finished early")
	}
	if !conv.Advance(25) || !xfer.Done() {
		t.Fatal("transfer did not finish on time")
	}
	if completions != 1 {
		t.Errorf("completion callback ran %d times", completions)
	}

	got, err := xfer.Wait()
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	want := []uint16{SampleValue(3, 0), SampleValue(7, 0), SampleValue(3, 1), SampleValue(7, 1)}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestConverterFailures(t *testing.T) {
	clock := &core.TickClock{}
	conv := NewConverter(clock, 0)
	conv.Listen(func() {})

	boom := errors.New("boom")
	conv.FailNextStart(boom)
	if _, err := conv.StartTransfer(make([]uint16, 1)); !errors.Is(err, boom) {
		t.Errorf("StartTransfer = %v, want injected error", err)
	}

	conv.FailNextTransfer(boom)
	xfer, err := conv.StartTransfer(make([]uint16, 1))
	if err != nil {
		t.Fatalf("StartTransfer after injected failure: %v", err)
	}
	conv.Advance(0)
	if _, err := xfer.Wait(); !errors.Is(err, boom) {
		t.Errorf("Wait = %v, want injected error", err)
	}
}

func TestStepperRunsAllUnits(t *testing.T) {
	st, _, conv := newSim(t, 5,
		unit("bed", 20, 0, 1),
		unit("hotend", 20, 2, 3),
	)

	if err := st.Run(context.Background(), 100); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	h := st.Acq.Handler()
	if h.Completed() < 90 {
		t.Errorf("completed %d transfers in 100 steps", h.Completed())
	}
	if h.Unexpected() != 0 {
		t.Errorf("unexpected completions: %d", h.Unexpected())
	}
	stats := conv.Stats()
	if stats.Started != stats.Finished {
		t.Errorf("started %d, finished %d", stats.Started, stats.Finished)
	}
	if stats.Reprogrammed != stats.Started {
		t.Errorf("alternating groups should reprogram every time: %+v", stats)
	}
	if !st.Acq.Quiescent() {
		t.Error("not quiescent after Run")
	}
}

func TestStepperStallEscalates(t *testing.T) {
	st, _, conv := newSim(t, 5,
		unit("fast", 20, 0),
		unit("slow", 20, 5),
	)
	conv.Stall(func(cfg core.ChannelConfig) bool { return cfg.Channels[0] == 5 }, 0)

	if err := st.Run(context.Background(), 20); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if err := st.Acq.Scheduler().ConfigErr(); !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("ConfigErr() = %v, want configuration error", err)
	}
	if st.Acq.Halted() {
		t.Error("stall halted the subsystem")
	}
	if st.Acq.Quiescent() {
		t.Fatal("stalled transfer should still own the channel")
	}

	conv.Release()
	conv.Advance(st.Clock.Now())
	if !st.Acq.Quiescent() {
		t.Error("released transfer did not retire")
	}
}

func TestStepperSpuriousCompletions(t *testing.T) {
	st, _, conv := newSim(t, 5, unit("only", 10, 4))
	st.SpuriousEvery = 3

	if err := st.Run(context.Background(), 30); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if conv.Stats().Spurious != 10 {
		t.Errorf("injected %d spurious completions, want 10", conv.Stats().Spurious)
	}
	if st.Acq.Handler().Unexpected() != 10 {
		t.Errorf("handler counted %d unexpected completions", st.Acq.Handler().Unexpected())
	}
	if st.Acq.Halted() {
		t.Error("spurious completions halted the subsystem")
	}
}

func TestStepperHonoursContext(t *testing.T) {
	st, _, _ := newSim(t, 5, unit("only", 10, 4))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := st.Run(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if st.Steps() != 0 {
		t.Errorf("ran %d steps after cancel", st.Steps())
	}
}
