package qf

import (
	"sync"
	"time"
)

// ActiveObject is a task wrapping a hierarchical state machine, a private
// event queue, and a unique priority, per spec §3/§4.D. Active objects are
// statically allocated: once Spawn returns, the object exists for the
// lifetime of the Framework.
type ActiveObject struct {
	hsm      *HSM
	queue    *EventQueue
	priority uint8
	name     string

	deferred    []*Event // caller-owned deferred queue, oldest first
	deferredCap int
	deferredMu  sync.Mutex

	holder *traceObjectHolder

	fw *Framework
}

func newActiveObject(fw *Framework, hsm *HSM, prio uint8, opts *aoOptions) *ActiveObject {
	ao := &ActiveObject{
		hsm:         hsm,
		priority:    prio,
		name:        opts.name,
		deferredCap: opts.deferredCapacity,
		fw:          fw,
	}
	ao.queue = newEventQueue(opts.queueCapacity, func() { fw.markReady(prio) }, func() { fw.markNotReady(prio) })
	if fw.metrics != nil {
		ao.queue.attachMetrics(fw.metrics, prio)
	}
	return ao
}

// Priority returns the active object's fixed, unique scheduling priority.
func (ao *ActiveObject) Priority() uint8 { return ao.priority }

// Name returns the human-readable name given via WithAOName, or "".
func (ao *ActiveObject) Name() string { return ao.name }

// HSM returns the active object's state machine, for tests and
// introspection; application code normally interacts with an AO only
// through Post/PostLIFO/Defer/Recall.
func (ao *ActiveObject) HSM() *HSM { return ao.hsm }

// Post is a FIFO post to this active object's queue, per §4.D: delegates
// to the queue and, on success, the event's reference count has already
// been incremented by EventQueue.Post.
func (ao *ActiveObject) Post(e *Event, margin int) bool {
	ao.fw.assertISRAware()
	return ao.queue.Post(e, margin)
}

// PostLIFO is a LIFO post to this active object's queue, per §4.D.
func (ao *ActiveObject) PostLIFO(e *Event) {
	ao.fw.assertISRAware()
	ao.queue.PostLIFO(e)
}

// dispatchOne dequeues and dispatches exactly one event, run-to-completion.
// Returns false if the queue was empty. Used by both schedulers.
func (ao *ActiveObject) dispatchOne() bool {
	e, ok := ao.queue.Get()
	if !ok {
		return false
	}

	trace := ao.fw.trace
	var before StateHandler
	if trace != nil {
		before = ao.hsm.Current()
		trace.Emit(TraceRecDispatch, 0, func(f *traceFields) { f.U8(ao.priority).U16(e.Signal) })
	}

	start := time.Now()
	ao.hsm.Dispatch(e)
	if ao.fw.metrics != nil {
		ao.fw.metrics.Dispatch.Record(time.Since(start))
		ao.fw.metrics.rate.Increment()
	}

	if trace != nil && stateID(ao.hsm.Current()) != stateID(before) {
		trace.Emit(TraceRecTran, 0, func(f *traceFields) { f.U8(ao.priority) })
	}

	GarbageCollect(e)
	return true
}

// Defer appends e to this active object's deferred queue, per §4.D; the
// incoming queue itself is not touched. The net reference count
// is unchanged: the deferred queue now holds the reference that the
// incoming queue held. Intended to be called from within a state handler,
// on the event currently being dispatched.
func (ao *ActiveObject) Defer(e *Event) {
	ao.deferredMu.Lock()
	defer ao.deferredMu.Unlock()
	Assert(len(ao.deferred) < ao.deferredCap, "ao", int(ao.priority), "deferred queue overflow")
	IncrementRef(e)
	ao.deferred = append(ao.deferred, e)
}

// Recall takes the oldest deferred event, if any, and LIFO-posts it back
// to the incoming queue so it is the very next event dispatched, per
// §4.D/§8 ("defer/recall round-trip"). Returns false if nothing was
// deferred.
func (ao *ActiveObject) Recall() bool {
	ao.deferredMu.Lock()
	if len(ao.deferred) == 0 {
		ao.deferredMu.Unlock()
		return false
	}
	e := ao.deferred[0]
	ao.deferred = ao.deferred[1:]
	ao.deferredMu.Unlock()

	ao.queue.PostLIFO(e)
	GarbageCollect(e) // PostLIFO re-incremented; this returns the deferred queue's share
	return true
}

// Subscribe registers this active object as a subscriber to signal, per
// §4.F. Delegates to the Framework's publish/subscribe tables.
func (ao *ActiveObject) Subscribe(signal uint16) {
	ao.fw.subscribe(ao, signal)
}

// Unsubscribe removes this active object from signal's subscriber set.
func (ao *ActiveObject) Unsubscribe(signal uint16) {
	ao.fw.unsubscribe(ao, signal)
}

// aoRegistry is the dense priority-indexed active object table, per §3:
// registry[1..=MAX]. Priority 0 is reserved for the idle loop and is never
// a valid index into objects.
type aoRegistry struct {
	mu      sync.RWMutex
	objects [MaxActiveObjects + 1]*ActiveObject // index 0 unused
}

func (r *aoRegistry) register(ao *ActiveObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	Assert(ao.priority >= 1 && int(ao.priority) <= MaxActiveObjects, "ao", int(ao.priority), "priority out of range")
	Assert(r.objects[ao.priority] == nil, "ao", int(ao.priority), "priority already registered")
	r.objects[ao.priority] = ao
}

func (r *aoRegistry) get(prio uint8) *ActiveObject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.objects[prio]
}

// forEach calls fn for every registered active object in ascending
// priority order.
func (r *aoRegistry) forEach(fn func(*ActiveObject)) {
	r.mu.RLock()
	snapshot := make([]*ActiveObject, 0, MaxActiveObjects)
	for _, ao := range r.objects {
		if ao != nil {
			snapshot = append(snapshot, ao)
		}
	}
	r.mu.RUnlock()
	for _, ao := range snapshot {
		fn(ao)
	}
}
