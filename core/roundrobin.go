package core

import (
	"errors"
	"sync/atomic"
)

// DefaultMissLimit is the number of consecutive busy turns after which a
// unit is reported as misconfigured.
const DefaultMissLimit = 8

// ScheduleEntry is one unit's place in the deadline queue.
type ScheduleEntry struct {
	Next   uint32 // absolute deadline
	Period uint32 // fixed interval between deadlines

	Arms    uint32 // successful activations
	Misses  uint16 // consecutive busy turns
	Skipped uint32 // whole periods dropped because the unit was served late

	escalated bool
}

// advance returns the deadline one period after prev. If that is still not
// in the future the deadline moves forward by whole periods, keeping its
// phase, and the number of dropped periods is returned.
func advance(prev, period, now uint32) (uint32, uint32) {
	next := prev + period
	if !timerDue(next, now) {
		return next, 0
	}
	k := (now-next)/period + 1
	return next + k*period, k
}

// Scheduler arms idle units on the shared channel in round-robin order. It
// runs only in the background context, from its own timer.
type Scheduler struct {
	reg   *Register
	conv  Converter
	queue *TimerQueue
	sink  Sink
	down  *Shutdown

	tick      uint32
	missLimit int

	entries []ScheduleEntry
	cursor  int
	timer   Timer
	running uint32 // atomic bool

	current    ChannelConfig
	programmed bool
	reconfigs  uint32
	configErr  error
}

func newScheduler(reg *Register, conv Converter, queue *TimerQueue, sink Sink, down *Shutdown,
	tick uint32, missLimit int, periods []uint32) *Scheduler {

	s := &Scheduler{
		reg:       reg,
		conv:      conv,
		queue:     queue,
		sink:      sink,
		down:      down,
		tick:      tick,
		missLimit: missLimit,
		entries:   make([]ScheduleEntry, len(periods)),
	}
	for i, p := range periods {
		s.entries[i].Period = p
	}
	s.timer.Handler = s.timerHandler
	return s
}

// Start sets every unit's first deadline one period after now and schedules
// the first tick.
func (s *Scheduler) Start(now uint32) {
	for i := range s.entries {
		s.entries[i].Next = now + s.entries[i].Period
	}
	atomic.StoreUint32(&s.running, 1)
	s.timer.WakeTime = now + s.tick
	s.queue.Schedule(&s.timer)
}

// Stop stops arming new transfers. A transfer already in flight completes
// normally.
func (s *Scheduler) Stop(now uint32) {
	if atomic.SwapUint32(&s.running, 0) == 0 {
		return
	}
	s.queue.Cancel(&s.timer)
	s.sink.Report(Event{Kind: EvtStopped, Clock: now})
}

// Running reports whether the scheduler is armed.
func (s *Scheduler) Running() bool {
	return atomic.LoadUint32(&s.running) != 0
}

func (s *Scheduler) timerHandler(t *Timer, now uint32) uint8 {
	if !s.Running() || s.down.Halted() {
		return SF_DONE
	}
	_ = s.Tick(now)
	if s.down.Halted() {
		return SF_DONE
	}
	t.WakeTime, _ = advance(t.WakeTime, s.tick, now)
	return SF_RESCHEDULE
}

// Tick arms at most one unit. It returns nil when a unit was armed or
// nothing was due, and a *UnitError wrapping ErrResourceBusy,
// ErrTransferFailed or ErrInvariantViolation otherwise.
func (s *Scheduler) Tick(now uint32) error {
	if s.down.Halted() {
		return ErrHalted
	}
	if !s.Running() {
		return nil
	}

	// The channel still belongs to the previous transfer.
	if id, busy := s.reg.InFlight(); busy {
		return s.miss(int(id), now)
	}

	k, ok := s.nextDue(now)
	if !ok {
		return nil
	}
	s.cursor = (k + 1) % len(s.entries)

	id := UnitID(k)
	u, ok := s.reg.Take(id)
	if !ok {
		return s.miss(k, now)
	}
	return s.arm(k, u, now)
}

func (s *Scheduler) nextDue(now uint32) (int, bool) {
	n := len(s.entries)
	for i := 0; i < n; i++ {
		k := (s.cursor + i) % n
		if timerDue(s.entries[k].Next, now) {
			return k, true
		}
	}
	return 0, false
}

func (s *Scheduler) arm(k int, u *Unit, now uint32) error {
	seq := u.Seq + 1
	err := s.reg.Arm(u, func() (Transfer, error) {
		if !s.programmed || !s.current.equal(u.Config) {
			if err := s.conv.Reconfigure(u.Config); err != nil {
				return nil, err
			}
			s.current = u.Config
			s.programmed = true
			s.reconfigs++
		}
		return s.conv.StartTransfer(u.Buffer)
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrInvariantViolation):
		s.down.Try(Event{Kind: EvtInvariantViolation, Unit: UnitID(k), Clock: now, Err: err})
		return err
	default:
		u.State = UnitIdle
		if perr := s.reg.Put(UnitID(k), u); perr != nil {
			s.down.Try(Event{Kind: EvtInvariantViolation, Unit: UnitID(k), Clock: now, Err: perr})
			return perr
		}
		s.sink.Report(Event{Kind: EvtTransferFailed, Unit: UnitID(k), Clock: now, Err: err})
		s.countMiss(k)
		s.escalate(k, now)
		return unitErr(UnitID(k), ErrTransferFailed)
	}

	e := &s.entries[k]
	e.Arms++
	e.Misses = 0
	e.escalated = false
	var skipped uint32
	e.Next, skipped = advance(e.Next, e.Period, now)
	e.Skipped += skipped

	s.sink.Report(Event{Kind: EvtArmed, Unit: UnitID(k), Clock: now, Seq: seq})
	return nil
}

// miss records a busy turn for unit k and reports it.
func (s *Scheduler) miss(k int, now uint32) error {
	misses := s.countMiss(k)
	id := UnitID(k)
	s.sink.Report(Event{Kind: EvtResourceBusy, Unit: id, Clock: now, Misses: misses, Err: ErrResourceBusy})
	s.escalate(k, now)
	return unitErr(id, ErrResourceBusy)
}

func (s *Scheduler) countMiss(k int) uint16 {
	e := &s.entries[k]
	if e.Misses < ^uint16(0) {
		e.Misses++
	}
	return e.Misses
}

// escalate turns a persistent miss streak into a configuration error,
// reported once per streak.
func (s *Scheduler) escalate(k int, now uint32) {
	e := &s.entries[k]
	if s.missLimit <= 0 || e.escalated || int(e.Misses) < s.missLimit {
		return
	}
	e.escalated = true
	s.configErr = unitErr(UnitID(k), ErrConfiguration)
	s.sink.Report(Event{Kind: EvtConfigurationError, Unit: UnitID(k), Clock: now, Misses: e.Misses, Err: s.configErr})
}

// ConfigErr returns the most recent configuration error, if any.
func (s *Scheduler) ConfigErr() error {
	return s.configErr
}

// Entry returns a copy of the unit's schedule entry.
func (s *Scheduler) Entry(id UnitID) ScheduleEntry {
	return s.entries[id]
}

// Cursor returns the unit the next round-robin scan starts from.
func (s *Scheduler) Cursor() UnitID {
	return UnitID(s.cursor)
}

// TickPeriod returns the scheduler cadence in timer ticks.
func (s *Scheduler) TickPeriod() uint32 {
	return s.tick
}

// Reconfigurations returns how often the converter was reprogrammed.
func (s *Scheduler) Reconfigurations() uint32 {
	return s.reconfigs
}
