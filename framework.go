package qf

import (
	"context"
	"sync"
)

// scheduler is satisfied by both qkScheduler and qvScheduler.
type scheduler interface {
	run(ctx context.Context) error
	wake()
}

// Framework is the process-wide, statically-allocated collection of
// active objects, event pools, timer wheels, and the publish/subscribe
// table, per §3's "global mutable state ... initialized before run() and
// immutable in structure thereafter" design note.
type Framework struct {
	opts *frameworkOptions

	ao     aoRegistry
	ready  *readySet
	pubsub *pubSub

	poolsMu       sync.Mutex
	pools         []*EventPool
	lastBlockSize int

	wheelsMu sync.Mutex
	wheels   map[TickRate]*timeWheel

	metrics *Metrics
	trace   *Trace

	isr *CriticalSection

	sched   scheduler
	started bool
	mu      sync.Mutex
}

// New creates a Framework. The scheduler, metrics, and recoverable-log
// rate limiting are configured via Option values.
func New(opts ...Option) (*Framework, error) {
	cfg, err := resolveFrameworkOptions(opts)
	if err != nil {
		return nil, err
	}

	fw := &Framework{
		opts:   cfg,
		ready:  newReadySet(),
		wheels: make(map[TickRate]*timeWheel),
		isr:    newCriticalSection(),
	}
	fw.pubsub = newPubSub(fw)
	if cfg.metricsEnabled {
		fw.metrics = newMetrics()
	}
	if cfg.traceCapacity > 0 {
		fw.trace = NewTrace(cfg.traceCapacity, cfg.traceTransport)
		fw.trace.SetGlobalFilter(TraceRecAOStart, true)
		fw.trace.SetGlobalFilter(TraceRecDispatch, true)
		fw.trace.SetGlobalFilter(TraceRecTran, true)
		fw.trace.SetGlobalFilter(TraceRecPublish, true)
		fw.trace.SetGlobalFilter(TraceRecTimerArm, true)
		fw.trace.SetGlobalFilter(TraceRecTimerDisarm, true)
	}
	switch cfg.scheduler {
	case SchedulerQV:
		fw.sched = newQVScheduler(fw)
	default:
		fw.sched = newQKScheduler(fw)
	}
	if cfg.rateLimitWindow > 0 {
		recoverableLimiter = newCatrateLimiter(cfg.rateLimitWindow, cfg.rateLimitBurst)
	}
	return fw, nil
}

// Metrics returns the Framework's metrics collector, or nil if WithMetrics
// was not enabled.
func (fw *Framework) Metrics() *Metrics { return fw.metrics }

// Trace returns the Framework's trace channel, or nil if WithTrace was not
// supplied to New.
func (fw *Framework) Trace() *Trace { return fw.trace }

// NewPool registers a new fixed-block event pool, per §3/§4.A. Pools must
// be registered in strictly non-decreasing block-size order; violating
// this is fatal via Assert, matching the spec's init-time contract.
func (fw *Framework) NewPool(blockSize, capacity int, opts ...PoolOption) *EventPool {
	fw.poolsMu.Lock()
	defer fw.poolsMu.Unlock()

	Assert(blockSize >= fw.lastBlockSize, "pool", 0, "pools must be registered in non-decreasing block-size order")
	fw.lastBlockSize = blockSize

	id := uint8(len(fw.pools) + 1)
	p := newEventPool(id, blockSize, capacity, resolvePoolOptions(opts), fw.metrics)
	fw.pools = append(fw.pools, p)
	logDebug("pool", "registered", map[string]any{"id": id, "block_size": blockSize, "capacity": capacity})
	return p
}

// NewEvent allocates a dynamic event of at least len bytes from the
// smallest registered pool that fits, per §4.A's "smallest-fits"
// allocation rule. Fatal via Assert if no pool is large enough.
func (fw *Framework) NewEvent(signal uint16, len int, payload any) *Event {
	fw.poolsMu.Lock()
	var target *EventPool
	for _, p := range fw.pools {
		if p.blockSize >= len {
			target = p
			break
		}
	}
	fw.poolsMu.Unlock()

	Assert(target != nil, "pool", 0, "no pool registered for requested event size")
	return target.New(signal, payload)
}

// Spawn creates and registers an ActiveObject at the given priority,
// running hsm, per §3/§4.D. prio must be unique and in [1, MaxActiveObjects].
func (fw *Framework) Spawn(prio uint8, hsm *HSM, opts ...AOOption) *ActiveObject {
	ao := newActiveObject(fw, hsm, prio, resolveAOOptions(opts))
	fw.ao.register(ao)
	logDebug("ao", "spawned", map[string]any{"priority": prio, "name": ao.name})
	if fw.trace != nil {
		objID := fw.trace.RegisterObject(ao)
		fw.trace.Emit(TraceRecAOStart, objID, func(f *traceFields) { f.U8(prio) })
	}
	return ao
}

// AO returns the active object registered at prio, or nil.
func (fw *Framework) AO(prio uint8) *ActiveObject { return fw.ao.get(prio) }

func (fw *Framework) markReady(prio uint8) {
	fw.ready.insert(prio)
	if fw.sched != nil {
		fw.sched.wake()
	}
}

func (fw *Framework) markNotReady(prio uint8) {
	fw.ready.remove(prio)
}

// subscribe / unsubscribe delegate to the publish/subscribe table; exposed
// through ActiveObject.Subscribe / Unsubscribe, per §4.F.
func (fw *Framework) subscribe(ao *ActiveObject, signal uint16)   { fw.pubsub.subscribe(ao, signal) }
func (fw *Framework) unsubscribe(ao *ActiveObject, signal uint16) { fw.pubsub.unsubscribe(ao, signal) }

// Publish delivers e to every active object subscribed to e.Signal, in
// descending priority order, per §4.F. Safe to call from any goroutine,
// including one standing in for an ISR (see CriticalSection).
func (fw *Framework) Publish(e *Event) {
	fw.assertISRAware()
	fw.pubsub.publish(e)
}

// wheelFor returns (creating if necessary) the timer wheel for rate.
func (fw *Framework) wheelFor(rate TickRate) *timeWheel {
	fw.wheelsMu.Lock()
	defer fw.wheelsMu.Unlock()
	w, ok := fw.wheels[rate]
	if !ok {
		w = newTimeWheel()
		fw.wheels[rate] = w
	}
	return w
}

// Tick advances rate's timer wheel by one tick, firing any armed timers
// whose countdown reaches zero, per §4.E. The BSP's periodic ISR for rate
// is expected to call this once per hardware tick; concurrent calls for
// the *same* rate must already be serialized by the caller (§9).
func (fw *Framework) Tick(rate TickRate) {
	fw.assertISRAware()
	fw.wheelFor(rate).tick()
}

// ScheduleLock raises the QK scheduler's priority ceiling, per §4.G. Valid
// only when the Framework was created with WithScheduler(SchedulerQK);
// calling it under QV is a programming error and is fatal via Assert.
func (fw *Framework) ScheduleLock(ceiling uint8) uint8 {
	qk, ok := fw.sched.(*qkScheduler)
	Assert(ok, "sched", 0, "ScheduleLock is only valid under SchedulerQK")
	return qk.ScheduleLock(ceiling)
}

// ScheduleUnlock restores a ceiling previously returned by ScheduleLock.
func (fw *Framework) ScheduleUnlock(prior uint8) {
	qk, ok := fw.sched.(*qkScheduler)
	Assert(ok, "sched", 0, "ScheduleUnlock is only valid under SchedulerQK")
	qk.ScheduleUnlock(prior)
}

// Run starts the scheduler and blocks until ctx is canceled. It is an
// error to call Run more than once on a given Framework (active objects
// are statically allocated for the process lifetime, per §3).
func (fw *Framework) Run(ctx context.Context) error {
	fw.mu.Lock()
	if fw.started {
		fw.mu.Unlock()
		Assert(false, "framework", 0, "Run called more than once")
		return nil
	}
	fw.started = true
	fw.mu.Unlock()

	bsp := getBSP()
	bsp.Init()

	fw.ao.forEach(func(ao *ActiveObject) {
		ao.hsm.Start()
	})

	bsp.OnStartup()
	err := fw.sched.run(ctx)
	bsp.OnCleanup()
	return err
}
