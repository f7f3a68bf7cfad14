package qf

import "sync"

// TickRate identifies one of potentially several independent tick sources
// (hardware timers) driving a time-event wheel, per §4.E.
type TickRate uint8

// TimeEvent is an armed, periodic-or-one-shot timer that posts itself to
// its owning active object when its countdown reaches zero, per §3/§4.E.
// While armed, a TimeEvent is linked into its tick rate's list and must not
// be reused for a second Arm until Disarm (or delivery of a non-periodic
// timer) unlinks it.
type TimeEvent struct {
	mu sync.Mutex

	ao       *ActiveObject
	event    *Event // base_event, per §3: reused across every firing
	rate     TickRate
	counter  uint32
	interval uint32
	linked   bool

	wheel *timeWheel
	next  *TimeEvent
	prev  *TimeEvent

	holder  *traceObjectHolder
	traceID uint32 // object-dictionary ID, assigned once on first Arm

	fw *Framework
}

// NewTimeEvent creates a disarmed timer that, once armed, posts signal to
// ao on its owning Framework's rate wheel.
func (fw *Framework) NewTimeEvent(ao *ActiveObject, signal uint16, rate TickRate) *TimeEvent {
	return &TimeEvent{ao: ao, event: NewStaticEvent(signal, nil), rate: rate, wheel: fw.wheelFor(rate), fw: fw}
}

// Arm links the timer into its tick rate's active list with the given
// initial countdown and (if > 0) periodic reload interval, per §4.E. Fatal
// via Assert if the timer is already armed ("timer double-arm", §7).
func (t *TimeEvent) Arm(ticks, interval uint32) {
	t.wheel.mu.Lock()
	defer t.wheel.mu.Unlock()

	t.mu.Lock()
	Assert(!t.linked, "timer", 0, "timer double-arm")
	t.counter = ticks
	t.interval = interval
	t.linked = true
	if t.fw.trace != nil && t.traceID == 0 {
		t.traceID = t.fw.trace.RegisterObject(t)
	}
	objID := t.traceID
	t.mu.Unlock()

	t.wheel.linkLocked(t)

	if t.fw.trace != nil {
		t.fw.trace.Emit(TraceRecTimerArm, objID, func(f *traceFields) { f.U32(ticks).U32(interval) })
	}
}

// Disarm unlinks the timer if it is currently armed. Returns whether it had
// been armed, giving idempotent, race-safe cancel semantics per §5/§8: a
// second Disarm call always returns false.
func (t *TimeEvent) Disarm() bool {
	t.wheel.mu.Lock()
	defer t.wheel.mu.Unlock()

	t.mu.Lock()
	wasArmed := t.linked
	t.linked = false
	t.mu.Unlock()

	if wasArmed {
		t.wheel.unlinkLocked(t)
	}
	if wasArmed && t.fw.trace != nil {
		t.fw.trace.Emit(TraceRecTimerDisarm, 0, nil)
	}
	return wasArmed
}

// timeWheel is one tick rate's intrusively-linked list of armed timers.
type timeWheel struct {
	mu   sync.Mutex
	head *TimeEvent
}

func newTimeWheel() *timeWheel { return &timeWheel{} }

// linkLocked inserts t at the head of the wheel's list. Caller holds w.mu.
func (w *timeWheel) linkLocked(t *TimeEvent) {
	t.prev = nil
	t.next = w.head
	if w.head != nil {
		w.head.prev = t
	}
	w.head = t
}

// unlinkLocked removes t from the wheel's list. Caller holds w.mu.
func (w *timeWheel) unlinkLocked(t *TimeEvent) {
	if t.prev != nil {
		t.prev.next = t.next
	} else if w.head == t {
		w.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	}
	t.prev = nil
	t.next = nil
}

// tick decrements every armed timer's counter by one, delivering (FIFO,
// margin 0) any that reach zero, reloading periodic timers and unlinking
// one-shot ones, per §4.E. Traversal runs under a single critical section,
// matching the spec's "each [wheel] is traversed under interrupt disable".
func (w *timeWheel) tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur := w.head
	for cur != nil {
		next := cur.next // capture before any possible unlink

		cur.mu.Lock()
		cur.counter--
		fire := cur.counter == 0
		var interval uint32
		if fire {
			interval = cur.interval
			if interval > 0 {
				cur.counter = interval
			} else {
				cur.linked = false
			}
		}
		cur.mu.Unlock()

		if fire {
			if interval == 0 {
				w.unlinkLocked(cur)
			}
			cur.ao.Post(cur.event, 0)
		}

		cur = next
	}
}
