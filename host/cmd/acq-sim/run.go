package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/inhies/go-bytesize"

	"sharedadc/config"
	"sharedadc/core"
	"sharedadc/sim"
	"sharedadc/telemetry"
)

// outputs are the telemetry destinations opened for a run. Nil fields are
// disabled.
type outputs struct {
	Log    io.Writer         // event lines
	Frames io.Writer         // protocol stream
	Modbus telemetry.RegisterWriter
}

// tally counts events per unit and kind.
type tally struct {
	mu     sync.Mutex
	counts map[core.UnitID]map[core.EventKind]int
}

func (t *tally) Report(ev core.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts == nil {
		t.counts = make(map[core.UnitID]map[core.EventKind]int)
	}
	m := t.counts[ev.Unit]
	if m == nil {
		m = make(map[core.EventKind]int)
		t.counts[ev.Unit] = m
	}
	m[ev.Kind]++
}

func (t *tally) count(id core.UnitID, kind core.EventKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[id][kind]
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// result summarizes a finished run.
type result struct {
	Steps     int
	Ticks     uint32
	Elapsed   time.Duration
	Converter sim.Stats
	Completed []int // per unit
	Busy      []int
	Errors    []int
	Names     []string
	Frames    uint32
	Bytes     int64
	Dropped   uint32
	Halted    error
}

// run builds the acquisition described by cfg on the simulated converter,
// steps it and reports through out.
func run(ctx context.Context, cfg *config.Config, out outputs) (*result, error) {
	clock := &core.TickClock{}
	conv := sim.NewConverter(clock, cfg.Simulation.TransferTicks)

	if st := cfg.Simulation.Stall; st.Unit != "" {
		want := cfg.Acquisition.Units[cfg.UnitIndex(st.Unit)].Channels
		conv.Stall(func(cc core.ChannelConfig) bool { return sameChannels(cc.Channels, want) }, st.Extra)
	}

	counts := &tally{}
	sinks := core.MultiSink{counts}
	var closers []*core.AsyncSink

	var debug core.DebugWriter
	if out.Log != nil && cfg.Telemetry.Log != "none" {
		debug = func(line string) { fmt.Fprintln(out.Log, line) }
		sinks = append(sinks, &core.DebugSink{Write: debug, Verbose: cfg.Telemetry.Log == "verbose"})
	}

	var frames *telemetry.FrameSink
	var counter *countingWriter
	if out.Frames != nil {
		counter = &countingWriter{w: out.Frames}
		frames = telemetry.NewFrameSink(counter)
		async := core.NewAsyncSink(frames, cfg.Telemetry.Queue)
		closers = append(closers, async)
		sinks = append(sinks, async)
	}

	var modbus *telemetry.ModbusSink
	if out.Modbus != nil && cfg.Telemetry.Modbus != nil {
		mc := cfg.Telemetry.Modbus
		s, err := telemetry.NewModbusSink(out.Modbus, telemetry.ModbusLayout{
			SlaveID: mc.SlaveID,
			Base:    mc.BaseAddress,
			Stride:  mc.Stride,
		})
		if err != nil {
			return nil, err
		}
		modbus = s
		async := core.NewAsyncSink(s, cfg.Telemetry.Queue)
		closers = append(closers, async)
		sinks = append(sinks, async)
	}

	opts := cfg.Options()
	opts.Sink = sinks
	opts.Debug = debug

	acq, err := core.New(conv, clock, cfg.Specs(), opts)
	if err != nil {
		return nil, fmt.Errorf("build acquisition: %w", err)
	}
	if frames != nil {
		if err := frames.Announce(acq); err != nil {
			return nil, fmt.Errorf("announce: %w", err)
		}
	}

	st := &sim.Stepper{
		Clock:         clock,
		Conv:          conv,
		Acq:           acq,
		Step:          cfg.EffectiveTick(),
		SpuriousEvery: cfg.Simulation.SpuriousEvery,
	}

	start := time.Now()
	runErr := st.Run(ctx, cfg.Simulation.Steps)

	res := &result{
		Steps:     st.Steps(),
		Ticks:     clock.Now(),
		Elapsed:   time.Since(start),
		Converter: conv.Stats(),
	}
	for _, a := range closers {
		a.Close()
		res.Dropped += a.Dropped()
	}
	if acq.Halted() {
		res.Halted = acq.Err()
	} else if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return nil, runErr
	}

	n := acq.Units()
	for i := 0; i < n; i++ {
		id := core.UnitID(i)
		res.Names = append(res.Names, acq.UnitName(id))
		res.Completed = append(res.Completed, counts.count(id, core.EvtCompleted))
		res.Busy = append(res.Busy, counts.count(id, core.EvtResourceBusy))
		res.Errors = append(res.Errors, counts.count(id, core.EvtConfigurationError)+
			counts.count(id, core.EvtTransferFailed))
	}
	if frames != nil {
		res.Frames = frames.Frames()
		res.Bytes = counter.n
	}
	if modbus != nil && out.Log != nil {
		if _, failed, lastErr := modbus.Stats(); failed > 0 {
			fmt.Fprintf(out.Log, "modbus: %d failed writes, last: %v\n", failed, lastErr)
		}
	}
	return res, nil
}

func sameChannels(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// print writes the run summary.
func (r *result) print(w io.Writer, clockHz uint32) {
	fmt.Fprintln(w, "\n=== Simulation ===")
	fmt.Fprintf(w, "Steps: %d (%.3fs simulated, %v wall)\n",
		r.Steps, float64(r.Ticks)/float64(clockHz), r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Converter: started=%d finished=%d spurious=%d reprogrammed=%d\n",
		r.Converter.Started, r.Converter.Finished, r.Converter.Spurious, r.Converter.Reprogrammed)
	for i, name := range r.Names {
		fmt.Fprintf(w, "  %-16s completed=%-6d busy=%-6d errors=%d\n", name, r.Completed[i], r.Busy[i], r.Errors[i])
	}
	if r.Frames > 0 {
		fmt.Fprintf(w, "Telemetry: %d frames, %s\n", r.Frames, bytesize.New(float64(r.Bytes)))
	}
	if r.Dropped > 0 {
		fmt.Fprintf(w, "Dropped events: %d\n", r.Dropped)
	}
	if r.Halted != nil {
		fmt.Fprintf(w, "HALTED: %v\n", r.Halted)
	}
}
