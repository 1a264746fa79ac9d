package core

// Timer represents a scheduled event
type Timer struct {
	WakeTime uint32
	Handler  func(t *Timer, now uint32) uint8

	next   *Timer
	queued bool
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

// TimerQueue is a deadline-ordered list of timers. List mutation happens
// inside the critical section; handlers run outside it.
type TimerQueue struct {
	cs   *CriticalSection
	head *Timer
}

// NewTimerQueue creates an empty queue guarded by cs.
func NewTimerQueue(cs *CriticalSection) *TimerQueue {
	if cs == nil {
		cs = &CriticalSection{}
	}
	return &TimerQueue{cs: cs}
}

// Schedule adds a timer to the queue. A timer that is already queued is
// moved to its new WakeTime.
func (q *TimerQueue) Schedule(t *Timer) {
	state := q.cs.Enter()
	defer q.cs.Exit(state)

	if t.queued {
		q.remove(t)
	}
	q.insert(t)
}

// Cancel removes a timer from the queue. It returns false if the timer was
// not queued.
func (q *TimerQueue) Cancel(t *Timer) bool {
	state := q.cs.Enter()
	defer q.cs.Exit(state)

	if !t.queued {
		return false
	}
	q.remove(t)
	return true
}

// Next returns the wake time of the earliest queued timer.
func (q *TimerQueue) Next() (uint32, bool) {
	state := q.cs.Enter()
	defer q.cs.Exit(state)

	if q.head == nil {
		return 0, false
	}
	return q.head.WakeTime, true
}

// Len returns the number of queued timers.
func (q *TimerQueue) Len() int {
	state := q.cs.Enter()
	defer q.cs.Exit(state)

	n := 0
	for t := q.head; t != nil; t = t.next {
		n++
	}
	return n
}

// Dispatch runs every timer whose WakeTime has been reached at now and
// returns how many handlers ran. A handler that returns SF_RESCHEDULE is
// re-inserted at its (updated) WakeTime; it runs again in the same call
// only if that time is also due.
func (q *TimerQueue) Dispatch(now uint32) int {
	ran := 0
	for {
		t := q.popDue(now)
		if t == nil {
			return ran
		}
		ran++

		if t.Handler(t, now) == SF_RESCHEDULE {
			q.Schedule(t)
		}
	}
}

func (q *TimerQueue) popDue(now uint32) *Timer {
	state := q.cs.Enter()
	defer q.cs.Exit(state)

	t := q.head
	if t == nil || !timerDue(t.WakeTime, now) {
		return nil
	}
	q.head = t.next
	t.next = nil
	t.queued = false
	return t
}

// insert inserts a timer in sorted order by WakeTime; equal wake times keep
// insertion order. Must be called inside the critical section.
func (q *TimerQueue) insert(t *Timer) {
	t.queued = true
	if q.head == nil || timerIsBefore(t.WakeTime, q.head.WakeTime) {
		t.next = q.head
		q.head = t
		return
	}

	current := q.head
	for current.next != nil && !timerIsBefore(t.WakeTime, current.next.WakeTime) {
		current = current.next
	}

	t.next = current.next
	current.next = t
}

// remove unlinks a queued timer. Must be called inside the critical section.
func (q *TimerQueue) remove(t *Timer) {
	if q.head == t {
		q.head = t.next
	} else {
		for cur := q.head; cur != nil; cur = cur.next {
			if cur.next == t {
				cur.next = t.next
				break
			}
		}
	}
	t.next = nil
	t.queued = false
}
