package core

// transferSlot holds the unit that is in flight on the shared channel.
type transferSlot struct {
	unit *Unit
	xfer Transfer
}

// Register is the ownership register: one slot per unit (nil while the unit
// is lent out) plus the transfer slot of the shared channel. Every access is
// a single short critical section.
type Register struct {
	cs    *CriticalSection
	units []*Unit
	slot  transferSlot
	armed int
}

// NewRegister creates a register for units with ids 0..n-1, all initially
// absent. Units are added with Put during startup.
func NewRegister(cs *CriticalSection, n int) *Register {
	if cs == nil {
		cs = &CriticalSection{}
	}
	return &Register{
		cs:    cs,
		units: make([]*Unit, n),
	}
}

// Len returns the number of unit slots.
func (r *Register) Len() int {
	return len(r.units)
}

// Take removes and returns the unit with the given id. Absence is a normal
// result: the unit is in flight or being retired.
func (r *Register) Take(id UnitID) (*Unit, bool) {
	state := r.cs.Enter()
	defer r.cs.Exit(state)

	if int(id) >= len(r.units) {
		return nil, false
	}
	u := r.units[id]
	r.units[id] = nil
	return u, u != nil
}

// Put stores a unit back in its slot. Storing over a present unit, into an
// unknown slot, or under the wrong id is an invariant violation and leaves
// the register untouched.
func (r *Register) Put(id UnitID, u *Unit) error {
	if u == nil || u.ID != id {
		return unitErr(id, ErrInvariantViolation)
	}

	state := r.cs.Enter()
	defer r.cs.Exit(state)

	if int(id) >= len(r.units) || r.units[id] != nil || r.slot.unit == u {
		return unitErr(id, ErrInvariantViolation)
	}
	r.units[id] = u
	return nil
}

// Available reports whether the unit is present in the register.
func (r *Register) Available(id UnitID) bool {
	state := r.cs.Enter()
	defer r.cs.Exit(state)

	return int(id) < len(r.units) && r.units[id] != nil
}

// Arm starts a transfer for u and moves it into the transfer slot, all in
// one critical section so a completion can never find the slot half
// written. start must only program the hardware.
func (r *Register) Arm(u *Unit, start func() (Transfer, error)) error {
	state := r.cs.Enter()
	defer r.cs.Exit(state)

	if r.slot.unit != nil || r.armed != 0 {
		return unitErr(u.ID, ErrInvariantViolation)
	}

	xfer, err := start()
	if err != nil {
		return unitErr(u.ID, err)
	}

	r.slot = transferSlot{unit: u, xfer: xfer}
	u.State = UnitArmed
	r.armed++
	if r.armed != 1 {
		return unitErr(u.ID, ErrInvariantViolation)
	}
	return nil
}

// Claim removes the finished transfer from the slot. An empty slot, or a
// transfer the hardware has not finished, yields ErrUnexpectedCompletion and
// changes nothing.
func (r *Register) Claim() (*Unit, Transfer, error) {
	state := r.cs.Enter()
	defer r.cs.Exit(state)

	u, xfer := r.slot.unit, r.slot.xfer
	if u == nil {
		return nil, nil, ErrUnexpectedCompletion
	}
	if !xfer.Done() {
		return nil, nil, unitErr(u.ID, ErrUnexpectedCompletion)
	}

	r.slot = transferSlot{}
	r.armed--
	if r.armed != 0 {
		return u, xfer, unitErr(u.ID, ErrInvariantViolation)
	}
	u.State = UnitRetired
	return u, xfer, nil
}

// InFlight returns the id of the unit in the transfer slot.
func (r *Register) InFlight() (UnitID, bool) {
	state := r.cs.Enter()
	defer r.cs.Exit(state)

	if r.slot.unit == nil {
		return 0, false
	}
	return r.slot.unit.ID, true
}

// Armed returns the number of armed units. Anything but 0 or 1 is a defect.
func (r *Register) Armed() int {
	state := r.cs.Enter()
	defer r.cs.Exit(state)

	return r.armed
}
