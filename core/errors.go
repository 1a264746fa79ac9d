package core

import "errors"

var (
	// ErrResourceBusy means the wanted unit, or the shared channel, has not
	// finished its previous transfer. The scheduler retries on a later tick.
	ErrResourceBusy = errors.New("resource busy")

	// ErrUnexpectedCompletion means a completion signal arrived while no
	// finished transfer was in the slot.
	ErrUnexpectedCompletion = errors.New("unexpected completion")

	// ErrInvariantViolation means the ownership discipline was broken: two
	// armed units, or a double claim of a slot. It halts the subsystem.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrConfiguration means a unit kept missing its turn for longer than
	// the miss limit allows: the period is shorter than the transfer time.
	ErrConfiguration = errors.New("configuration error")

	// ErrTransferFailed means the converter refused to start a transfer or
	// could not finalize one.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrHalted is returned by every operation once an invariant violation
	// has halted the subsystem.
	ErrHalted = errors.New("acquisition halted")
)

// UnitError ties an error to the unit it concerns.
type UnitError struct {
	Unit UnitID
	Err  error
}

func (e *UnitError) Error() string {
	return "unit " + itoa(int(e.Unit)) + ": " + e.Err.Error()
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

func unitErr(id UnitID, err error) error {
	return &UnitError{Unit: id, Err: err}
}

// EventKind identifies a telemetry event.
type EventKind uint8

const (
	EvtArmed EventKind = iota + 1
	EvtCompleted
	EvtResourceBusy
	EvtUnexpectedCompletion
	EvtInvariantViolation
	EvtConfigurationError
	EvtTransferFailed
	EvtStopped
)

func (k EventKind) String() string {
	switch k {
	case EvtArmed:
		return "armed"
	case EvtCompleted:
		return "completed"
	case EvtResourceBusy:
		return "resource_busy"
	case EvtUnexpectedCompletion:
		return "unexpected_completion"
	case EvtInvariantViolation:
		return "invariant_violation"
	case EvtConfigurationError:
		return "configuration_error"
	case EvtTransferFailed:
		return "transfer_failed"
	case EvtStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is what the core reports to its telemetry sink.
type Event struct {
	Kind   EventKind
	Unit   UnitID
	Clock  uint32
	Seq    uint32
	Misses uint16

	// Samples aliases the unit buffer on EvtCompleted and is only valid for
	// the duration of Report. Sinks that keep it must copy.
	Samples []uint16

	Err error
}
