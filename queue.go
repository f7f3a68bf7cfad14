package qf

import "sync"

// EventQueue is an active object's private event queue, per spec §3/§4.B: a
// single "front slot" bypass in front of a fixed-capacity ring buffer. The
// front slot lets an empty queue accept a post without ever touching the
// ring. Capacity N therefore admits up to N+1 outstanding events (N in the
// ring plus the front slot) — the invariant exercised by the queue tests is
// n_free + queued == capacity + 1.
//
// Thread Safety: EventQueue is safe for concurrent Post/PostLIFO/Get from
// any goroutine, including one standing in for an ISR (see CriticalSection).
// The mutex here plays the role of the target's interrupt-disable region;
// every method holds it for a bounded, allocation-free span.
type EventQueue struct {
	mu sync.Mutex

	front *Event
	ring  []*Event // fixed-capacity ring, logically [head, tail)
	head  int
	tail  int
	count int // events currently queued in ring (excludes front)

	capacity int
	nFree    int
	nMin     int // low-watermark of nFree, monotonically non-increasing

	ready    func()
	notReady func()

	metrics  *Metrics
	aoPrio   uint8
}

// newEventQueue creates a queue with the given ring capacity. ready is
// invoked (outside any lock held by this queue) whenever a post transitions
// the queue from empty to non-empty; notReady is invoked when Get leaves it
// empty. Both may be nil.
func newEventQueue(capacity int, ready, notReady func()) *EventQueue {
	return &EventQueue{
		ring:     make([]*Event, capacity),
		capacity: capacity,
		nFree:    capacity + 1, // +1 for the front slot
		nMin:     capacity + 1,
		ready:    ready,
		notReady: notReady,
	}
}

func (q *EventQueue) attachMetrics(m *Metrics, aoPrio uint8) {
	q.metrics = m
	q.aoPrio = aoPrio
}

// Post is a FIFO post, per §4.B. margin is the minimum number of free
// slots that must remain after this post; margin 0 means "must succeed or
// the condition is fatal". Returns false (recoverable-at-API, §7) if the
// queue cannot admit the event within margin and margin > 0.
func (q *EventQueue) Post(e *Event, margin int) bool {
	q.mu.Lock()

	if q.nFree <= margin {
		if margin == 0 {
			q.mu.Unlock()
			Assert(false, "queue", 0, "post with margin 0 failed: queue overflow")
			return false // unreachable: Assert does not return
		}
		q.mu.Unlock()
		logRecoverable("queue", q.aoPrio, "post rejected: margin not met", nil, map[string]any{
			"margin": margin, "free": q.nFree,
		})
		return false
	}

	IncrementRef(e)
	q.nFree--
	if q.nFree < q.nMin {
		q.nMin = q.nFree
	}

	wasEmpty := q.front == nil
	if wasEmpty {
		q.front = e
	} else {
		q.ring[q.tail] = e
		q.tail = (q.tail + 1) % q.capacity
		q.count++
	}
	q.observeLocked()
	q.mu.Unlock()

	if wasEmpty && q.ready != nil {
		q.ready()
	}
	return true
}

// PostLIFO is a LIFO post, per §4.B: the new event becomes front; any prior
// front is pushed back into the ring at its tail. Never accepts a margin —
// it always succeeds unless the ring itself is already full, which is
// fatal (the caller is expected to size queues so LIFO posts, used for
// recall, always fit).
func (q *EventQueue) PostLIFO(e *Event) {
	q.mu.Lock()

	Assert(q.nFree > 0, "queue", 0, "post_lifo failed: queue overflow")

	IncrementRef(e)
	q.nFree--
	if q.nFree < q.nMin {
		q.nMin = q.nFree
	}

	wasEmpty := q.front == nil
	prevFront := q.front
	q.front = e
	if !wasEmpty {
		q.ring[q.tail] = prevFront
		q.tail = (q.tail + 1) % q.capacity
		q.count++
	}
	q.observeLocked()
	q.mu.Unlock()

	if wasEmpty && q.ready != nil {
		q.ready()
	}
}

// Get dequeues the front event, refilling front from the ring's head if
// any events remain there. Returns (nil, false) if the queue is empty, at
// which point the owning active object becomes not-ready.
func (q *EventQueue) Get() (*Event, bool) {
	q.mu.Lock()

	e := q.front
	if e == nil {
		q.mu.Unlock()
		return nil, false
	}

	if q.count > 0 {
		q.front = q.ring[q.head]
		q.ring[q.head] = nil
		q.head = (q.head + 1) % q.capacity
		q.count--
	} else {
		q.front = nil
	}
	q.nFree++
	becameEmpty := q.front == nil
	q.observeLocked()
	q.mu.Unlock()

	if becameEmpty && q.notReady != nil {
		q.notReady()
	}
	return e, true
}

// observeLocked records a queue-depth/low-watermark metrics sample. Caller
// must hold q.mu.
func (q *EventQueue) observeLocked() {
	if q.metrics == nil {
		return
	}
	depth := q.count
	if q.front != nil {
		depth++
	}
	q.metrics.Queue.ObserveQueueFree(q.aoPrio, q.nFree, depth)
}

// Free returns the current free-slot count (front slot plus ring).
func (q *EventQueue) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nFree
}

// LowWater returns the minimum free-slot count ever observed (n_min).
func (q *EventQueue) LowWater() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nMin
}

// IsEmpty reports whether the queue currently holds no events.
func (q *EventQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.front == nil
}

// Capacity returns the ring capacity this queue was created with (not
// counting the front slot).
func (q *EventQueue) Capacity() int {
	return q.capacity
}
