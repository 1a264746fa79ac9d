package core

import "testing"

func TestTimerQueueOrder(t *testing.T) {
	q := NewTimerQueue(nil)

	var fired []int
	mk := func(id int, wake uint32) *Timer {
		return &Timer{
			WakeTime: wake,
			Handler: func(t *Timer, now uint32) uint8 {
				fired = append(fired, id)
				return SF_DONE
			},
		}
	}

	q.Schedule(mk(3, 300))
	q.Schedule(mk(1, 100))
	q.Schedule(mk(2, 200))
	q.Schedule(mk(4, 200)) // same time as 2, must run after it

	if next, ok := q.Next(); !ok || next != 100 {
		t.Errorf("Next() = %d, %v; want 100, true", next, ok)
	}

	if n := q.Dispatch(99); n != 0 {
		t.Errorf("Dispatch before any deadline ran %d handlers", n)
	}
	if n := q.Dispatch(200); n != 3 {
		t.Errorf("Dispatch(200) ran %d handlers, want 3", n)
	}

	want := []int{1, 2, 4}
	if len(fired) != len(want) {
		t.Fatalf("fired %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired[%d] = %d, want %d", i, fired[i], want[i])
		}
	}
	if q.Len() != 1 {
		t.Errorf("expected one timer left, got %d", q.Len())
	}
}

func TestTimerQueueCancelAndReschedule(t *testing.T) {
	q := NewTimerQueue(nil)

	ran := 0
	timer := &Timer{WakeTime: 50, Handler: func(*Timer, uint32) uint8 { ran++; return SF_DONE }}

	q.Schedule(timer)
	q.Schedule(timer) // moving a queued timer must not duplicate it
	if q.Len() != 1 {
		t.Fatalf("rescheduling duplicated the timer: len=%d", q.Len())
	}

	if !q.Cancel(timer) {
		t.Error("Cancel of a queued timer returned false")
	}
	if q.Cancel(timer) {
		t.Error("Cancel of an idle timer returned true")
	}
	q.Dispatch(1000)
	if ran != 0 {
		t.Error("cancelled timer ran")
	}
}

func TestTimerQueuePeriodicHandler(t *testing.T) {
	q := NewTimerQueue(nil)

	var at []uint32
	timer := &Timer{WakeTime: 10}
	timer.Handler = func(t *Timer, now uint32) uint8 {
		at = append(at, now)
		t.WakeTime += 10
		return SF_RESCHEDULE
	}
	q.Schedule(timer)

	for now := uint32(0); now <= 40; now += 5 {
		q.Dispatch(now)
	}

	want := []uint32{10, 20, 30, 40}
	if len(at) != len(want) {
		t.Fatalf("handler ran at %v, want %v", at, want)
	}
	for i := range want {
		if at[i] != want[i] {
			t.Errorf("run %d at %d, want %d", i, at[i], want[i])
		}
	}
}

func TestTimerQueueAcrossWrap(t *testing.T) {
	q := NewTimerQueue(nil)

	var fired []string
	early := &Timer{WakeTime: 0xFFFFFFF0, Handler: func(*Timer, uint32) uint8 { fired = append(fired, "early"); return SF_DONE }}
	late := &Timer{WakeTime: 0x00000010, Handler: func(*Timer, uint32) uint8 { fired = append(fired, "late"); return SF_DONE }}

	q.Schedule(late)
	q.Schedule(early)

	if next, _ := q.Next(); next != 0xFFFFFFF0 {
		t.Errorf("pre-wrap timer should be first, Next() = %#x", next)
	}

	q.Dispatch(0xFFFFFFF8)
	if len(fired) != 1 || fired[0] != "early" {
		t.Fatalf("after first dispatch fired = %v", fired)
	}

	q.Dispatch(0x00000020)
	if len(fired) != 2 || fired[1] != "late" {
		t.Errorf("after wrap fired = %v", fired)
	}
}
