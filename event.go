package qf

import (
	"sync"
	"sync/atomic"
)

// Event is a reference-counted message, per spec §3/§4.A. Events with
// PoolID 0 are immutable statics whose ref count is never consulted; events
// with PoolID > 0 are drawn from the matching EventPool and recycled once
// their ref count returns to zero. An Event must never be mutated once it
// has been posted to any queue, timer, or deferred store.
type Event struct {
	Signal  uint16
	PoolID  uint8
	Payload any

	refCount atomic.Int32
	pool     *EventPool
}

// NewStaticEvent returns an immutable, statically-allocated event (PoolID
// 0). It is never subject to reference counting or recycling and may be
// posted to any number of queues concurrently.
func NewStaticEvent(signal uint16, payload any) *Event {
	return &Event{Signal: signal, Payload: payload}
}

// IncrementRef records one more reachable reference to a dynamic event.
// No-op for static events (PoolID 0). Called by queues, the timer wheel,
// and publish on every successful post.
func IncrementRef(e *Event) {
	if e.PoolID == 0 {
		return
	}
	e.refCount.Add(1)
}

// GarbageCollect drops one reference to a dynamic event. When the count
// reaches zero, or the event was never posted (count already 0), the block
// is returned to its owning pool. No-op for static events. Collecting an
// already released event is fatal via Assert (ref-count underflow, or the
// pool's foreign-block check), per §4.A.
func GarbageCollect(e *Event) {
	if e.PoolID == 0 {
		return
	}
	n := e.refCount.Add(-1)
	// -1 is a never-posted event being discarded; anything lower is an underflow.
	Assert(n >= -1, "event", 0, "ref_count underflow on garbage_collect")
	if n <= 0 {
		e.pool.release(e)
	}
}

// RefCount returns the event's current reference count. Always 0 for
// static events, which is by definition since their count is ignored.
func RefCount(e *Event) int {
	if e.PoolID == 0 {
		return 0
	}
	return int(e.refCount.Load())
}

// EventPool is a fixed-block allocator of uniformly sized event blocks. It
// has no real backing storage in this hosted implementation — Go's garbage
// collector owns the *Event headers — but the pool still enforces the
// fixed-capacity, smallest-fits, low-watermark semantics of the embedded
// original so application code sees the same allocation failure behavior it
// would on target hardware.
type EventPool struct {
	id        uint8
	blockSize int
	capacity  int
	name      string

	mu       sync.Mutex
	free     int
	lowWater int
	inUse    map[*Event]struct{}

	metrics *Metrics
	holder  *traceObjectHolder
}

func newEventPool(id uint8, blockSize, capacity int, opts *poolOptions, metrics *Metrics) *EventPool {
	p := &EventPool{
		id:        id,
		blockSize: blockSize,
		capacity:  capacity,
		name:      opts.name,
		free:      capacity,
		lowWater:  capacity,
		inUse:     make(map[*Event]struct{}, capacity),
		metrics:   metrics,
	}
	return p
}

// ID returns the pool's 1-based identifier, as assigned at registration.
func (p *EventPool) ID() uint8 { return p.id }

// BlockSize returns the uniform block size this pool was registered with.
func (p *EventPool) BlockSize() int { return p.blockSize }

// New allocates a block from the pool and returns a fresh event with
// ref_count == 0 (the caller must Post or GarbageCollect it, per §4.A).
// Fatal via Assert if the pool is exhausted: the spec's scenario 4 treats
// this as an on_assert condition, not a recoverable return.
func (p *EventPool) New(signal uint16, payload any) *Event {
	p.mu.Lock()
	Assert(p.free > 0, "pool", int(p.id), "pool exhausted")
	p.free--
	if p.free < p.lowWater {
		p.lowWater = p.free
	}
	inUse := p.capacity - p.free
	if p.metrics != nil {
		p.metrics.Queue.ObservePoolFree(p.id, p.free, inUse)
	}
	p.mu.Unlock()

	e := &Event{Signal: signal, PoolID: p.id, Payload: payload, pool: p}
	p.mu.Lock()
	p.inUse[e] = struct{}{}
	p.mu.Unlock()
	return e
}

// release returns a block to the pool. Fatal via Assert if e does not
// belong to this pool (the "foreign-block free" condition in §7).
func (p *EventPool) release(e *Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inUse[e]
	Assert(ok, "pool", int(p.id), "freeing a block not belonging to the claimed pool")
	delete(p.inUse, e)
	p.free++
	inUse := p.capacity - p.free
	if p.metrics != nil {
		p.metrics.Queue.ObservePoolFree(p.id, p.free, inUse)
	}
}

// Free returns the current number of free blocks.
func (p *EventPool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free
}

// LowWater returns the minimum free-block count ever observed.
func (p *EventPool) LowWater() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lowWater
}
