package core

import "sync/atomic"

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Sink receives acquisition events. It is called from both the background
// context and the completion interrupt, so it must not block.
type Sink interface {
	Report(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ev Event)

func (f SinkFunc) Report(ev Event) { f(ev) }

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Report(Event) {}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Report(ev Event) {
	for _, s := range m {
		s.Report(ev)
	}
}

// DebugSink renders events as single text lines.
type DebugSink struct {
	Write DebugWriter

	// Verbose also prints armed events.
	Verbose bool
}

// Report formats the event and writes it.
func (d *DebugSink) Report(ev Event) {
	if d.Write == nil {
		return
	}
	if ev.Kind == EvtArmed && !d.Verbose {
		return
	}
	d.Write(FormatEvent(ev))
}

// FormatEvent renders an event the way DebugSink prints it.
func FormatEvent(ev Event) string {
	line := "[ACQ] " + ev.Kind.String() +
		" unit=" + itoa(int(ev.Unit)) +
		" clock=" + utoa(ev.Clock)

	switch ev.Kind {
	case EvtCompleted:
		line += " seq=" + utoa(ev.Seq) + " samples=" + joinSamples(ev.Samples)
	case EvtResourceBusy, EvtConfigurationError:
		line += " misses=" + itoa(int(ev.Misses))
	case EvtArmed:
		line += " seq=" + utoa(ev.Seq)
	}
	if ev.Err != nil {
		line += " err=" + ev.Err.Error()
	}
	return line
}

// AsyncSink queues events for a slower sink and drains them from its own
// goroutine. When the queue is full the event is dropped and counted; the
// acquisition path never waits.
type AsyncSink struct {
	out     Sink
	ch      chan Event
	done    chan struct{}
	dropped uint32 // atomic
}

// NewAsyncSink starts a drain goroutine feeding out. depth is the queue
// length (16 if zero, as for debug output).
func NewAsyncSink(out Sink, depth int) *AsyncSink {
	if depth <= 0 {
		depth = 16
	}
	a := &AsyncSink{
		out:  out,
		ch:   make(chan Event, depth),
		done: make(chan struct{}),
	}
	go a.worker()
	return a
}

func (a *AsyncSink) worker() {
	defer close(a.done)
	for ev := range a.ch {
		a.out.Report(ev)
	}
}

// Report queues a copy of the event, or drops it if the queue is full.
func (a *AsyncSink) Report(ev Event) {
	if ev.Samples != nil {
		samples := make([]uint16, len(ev.Samples))
		copy(samples, ev.Samples)
		ev.Samples = samples
	}
	select {
	case a.ch <- ev:
	default:
		atomic.AddUint32(&a.dropped, 1)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (a *AsyncSink) Dropped() uint32 {
	return atomic.LoadUint32(&a.dropped)
}

// Close stops accepting events and waits for the queue to drain. Report
// must not be called after Close.
func (a *AsyncSink) Close() {
	close(a.ch)
	<-a.done
}

const (
	EventRingSize = 32 // Keep last 32 events for post-mortem
)

// EventRing keeps the most recent events for a post-mortem dump after a halt.
// Samples are not retained.
type EventRing struct {
	cs   CriticalSection
	ring [EventRingSize]Event
	head uint8 // Next write position
	n    uint8
}

// Report records the event.
func (r *EventRing) Report(ev Event) {
	ev.Samples = nil

	state := r.cs.Enter()
	r.ring[r.head] = ev
	r.head = (r.head + 1) % EventRingSize
	if r.n < EventRingSize {
		r.n++
	}
	r.cs.Exit(state)
}

// Snapshot returns the recorded events, oldest first.
func (r *EventRing) Snapshot() []Event {
	state := r.cs.Enter()
	defer r.cs.Exit(state)

	out := make([]Event, 0, r.n)
	start := (r.head + EventRingSize - r.n) % EventRingSize
	for i := uint8(0); i < r.n; i++ {
		out = append(out, r.ring[(start+i)%EventRingSize])
	}
	return out
}

// Dump writes the recorded events, oldest first.
func (r *EventRing) Dump(w DebugWriter) {
	if w == nil {
		return
	}
	w("[ACQ] === Event Ring Dump ===")
	for _, ev := range r.Snapshot() {
		w(FormatEvent(ev))
	}
	w("[ACQ] === End Dump ===")
}

// Clear empties the ring.
func (r *EventRing) Clear() {
	state := r.cs.Enter()
	r.ring = [EventRingSize]Event{}
	r.head = 0
	r.n = 0
	r.cs.Exit(state)
}
