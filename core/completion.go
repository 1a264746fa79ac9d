package core

import (
	"errors"
	"sync/atomic"
)

// CompletionHandler retires the in-flight unit when the converter signals
// transfer complete. It runs in interrupt context and never arms anything;
// the next transfer is the scheduler's business.
type CompletionHandler struct {
	reg   *Register
	clock Clock
	sink  Sink
	down  *Shutdown

	completed  uint32 // atomic
	unexpected uint32 // atomic
	failed     uint32 // atomic
}

// Complete handles one transfer-complete signal. A signal with nothing
// finished in the slot is reported and otherwise ignored.
func (h *CompletionHandler) Complete() error {
	if h.down.Halted() {
		return ErrHalted
	}
	now := h.clock.Now()

	u, xfer, err := h.reg.Claim()
	if err != nil {
		if errors.Is(err, ErrInvariantViolation) {
			h.down.Try(Event{Kind: EvtInvariantViolation, Clock: now, Err: err})
			return err
		}
		atomic.AddUint32(&h.unexpected, 1)
		ev := Event{Kind: EvtUnexpectedCompletion, Clock: now, Err: err}
		var ue *UnitError
		if errors.As(err, &ue) {
			ev.Unit = ue.Unit
		}
		h.sink.Report(ev)
		return err
	}

	var result error
	buf, werr := xfer.Wait()
	if werr != nil {
		// Buffer contents are undefined; the unit is still returned.
		atomic.AddUint32(&h.failed, 1)
		h.sink.Report(Event{Kind: EvtTransferFailed, Unit: u.ID, Clock: now, Seq: u.Seq, Err: werr})
		result = unitErr(u.ID, ErrTransferFailed)
	} else {
		if len(buf) > 0 && &buf[0] != &u.Buffer[0] {
			copy(u.Buffer, buf)
		}
		u.Seq++
		atomic.AddUint32(&h.completed, 1)
		h.sink.Report(Event{Kind: EvtCompleted, Unit: u.ID, Clock: now, Seq: u.Seq, Samples: u.Buffer})
	}

	u.State = UnitIdle
	if err := h.reg.Put(u.ID, u); err != nil {
		h.down.Try(Event{Kind: EvtInvariantViolation, Unit: u.ID, Clock: now, Err: err})
		return err
	}
	return result
}

// Completed returns the number of transfers retired with data.
func (h *CompletionHandler) Completed() uint32 {
	return atomic.LoadUint32(&h.completed)
}

// Unexpected returns the number of completion signals that found nothing
// to retire.
func (h *CompletionHandler) Unexpected() uint32 {
	return atomic.LoadUint32(&h.unexpected)
}

// Failed returns the number of transfers whose result could not be read.
func (h *CompletionHandler) Failed() uint32 {
	return atomic.LoadUint32(&h.failed)
}
