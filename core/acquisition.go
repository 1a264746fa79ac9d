package core

import (
	"context"
	"errors"
	"time"
)

// UnitSpec describes one pin group to be multiplexed on the channel.
type UnitSpec struct {
	Name      string
	Config    ChannelConfig
	BufferLen int    // samples; 0 means one scan
	Period    uint32 // ticks between activations; 0 means Tick * unit count
}

// Options tunes an Acquisition.
type Options struct {
	// Tick is the scheduler cadence in timer ticks. Zero derives it from the
	// shortest unit period divided by the unit count.
	Tick uint32

	// MissLimit is the busy streak that escalates to a configuration error.
	// Zero selects DefaultMissLimit, a negative value disables escalation.
	MissLimit int

	// Sink receives all events. It must not block.
	Sink Sink

	// Debug receives the event ring dump when the subsystem halts.
	Debug DebugWriter
}

var (
	errNoUnits     = errors.New("at least one unit required")
	errTooManyUnit = errors.New("too many units")
	errNoCadence   = errors.New("tick or unit period required")
)

// Acquisition wires the units, the ownership register, the scheduler and
// the completion handler around one shared converter.
type Acquisition struct {
	cs      *CriticalSection
	reg     *Register
	timers  *TimerQueue
	sched   *Scheduler
	handler *CompletionHandler
	down    *Shutdown
	ring    *EventRing
	clock   Clock
	names   []string
	configs []ChannelConfig
}

// New builds the subsystem and registers the completion handler with conv.
// All units start idle in the register.
func New(conv Converter, clock Clock, specs []UnitSpec, opts Options) (*Acquisition, error) {
	n := len(specs)
	if n == 0 {
		return nil, errNoUnits
	}
	if n > MaxUnits {
		return nil, errTooManyUnit
	}

	tick := opts.Tick
	if tick == 0 {
		var shortest uint32
		for _, sp := range specs {
			if sp.Period != 0 && (shortest == 0 || sp.Period < shortest) {
				shortest = sp.Period
			}
		}
		tick = shortest / uint32(n)
		if tick == 0 {
			return nil, errNoCadence
		}
	}

	missLimit := opts.MissLimit
	if missLimit == 0 {
		missLimit = DefaultMissLimit
	}

	cs := &CriticalSection{}
	a := &Acquisition{
		cs:      cs,
		reg:     NewRegister(cs, n),
		timers:  NewTimerQueue(cs),
		ring:    &EventRing{},
		clock:   clock,
		names:   make([]string, n),
		configs: make([]ChannelConfig, n),
	}

	periods := make([]uint32, n)
	for i, sp := range specs {
		u, err := NewUnit(UnitID(i), sp.Name, sp.Config, sp.BufferLen)
		if err != nil {
			return nil, err
		}
		if err := a.reg.Put(u.ID, u); err != nil {
			return nil, err
		}
		a.names[i] = sp.Name
		a.configs[i] = u.Config
		periods[i] = sp.Period
		if periods[i] == 0 {
			periods[i] = tick * uint32(n)
		}
	}

	var sink Sink = a.ring
	if opts.Sink != nil {
		sink = MultiSink{a.ring, opts.Sink}
	}

	a.down = &Shutdown{sink: sink, ring: a.ring, debug: opts.Debug}
	a.sched = newScheduler(a.reg, conv, a.timers, sink, a.down, tick, missLimit, periods)
	a.handler = &CompletionHandler{reg: a.reg, clock: clock, sink: sink, down: a.down}

	conv.Listen(a.OnTransferComplete)
	return a, nil
}

// Start schedules the first tick relative to the clock's current time.
func (a *Acquisition) Start() {
	a.sched.Start(a.clock.Now())
}

// Stop stops arming transfers. The transfer in flight, if any, still
// completes and its unit returns to the register.
func (a *Acquisition) Stop() {
	a.sched.Stop(a.clock.Now())
}

// Poll runs the background context once: every due timer is dispatched.
func (a *Acquisition) Poll() int {
	return a.timers.Dispatch(a.clock.Now())
}

// Run starts the scheduler and polls it every interval until ctx is done or
// the subsystem halts. It returns the halt reason, or nil after ctx ends.
func (a *Acquisition) Run(ctx context.Context, interval time.Duration) error {
	a.Start()
	defer a.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.Poll()
			if a.down.Halted() {
				return a.Err()
			}
		}
	}
}

// OnTransferComplete is the interrupt entry point handed to the converter.
func (a *Acquisition) OnTransferComplete() {
	_ = a.handler.Complete()
}

// Quiescent reports whether no transfer is in flight.
func (a *Acquisition) Quiescent() bool {
	_, busy := a.reg.InFlight()
	return !busy
}

// Halted reports whether an invariant violation stopped the subsystem.
func (a *Acquisition) Halted() bool {
	return a.down.Halted()
}

// Err returns the halt reason, or nil.
func (a *Acquisition) Err() error {
	return a.down.Err()
}

// UnitName returns the configured name of a unit.
func (a *Acquisition) UnitName(id UnitID) string {
	if int(id) >= len(a.names) {
		return ""
	}
	return a.names[id]
}

// UnitConfig returns the pin group a unit samples.
func (a *Acquisition) UnitConfig(id UnitID) ChannelConfig {
	if int(id) >= len(a.configs) {
		return ChannelConfig{}
	}
	return a.configs[id]
}

// Units returns the number of units.
func (a *Acquisition) Units() int {
	return len(a.names)
}

// Register returns the ownership register.
func (a *Acquisition) Register() *Register { return a.reg }

// Scheduler returns the round-robin scheduler.
func (a *Acquisition) Scheduler() *Scheduler { return a.sched }

// Handler returns the completion handler.
func (a *Acquisition) Handler() *CompletionHandler { return a.handler }

// Timers returns the deadline queue.
func (a *Acquisition) Timers() *TimerQueue { return a.timers }

// Events returns the most recent events, oldest first.
func (a *Acquisition) Events() []Event { return a.ring.Snapshot() }
