package qf

import "sync"

// pubSub is the signal -> subscriber-priority-set table, per §3/§4.F.
// Subscriber sets reuse readySet's bitset shape and highest-first
// traversal directly, since "descending priority" publish delivery is
// exactly the same O(1)-highest-bit walk the schedulers already need.
type pubSub struct {
	mu   sync.RWMutex
	subs map[uint16]*readySet
	fw   *Framework
}

func newPubSub(fw *Framework) *pubSub {
	return &pubSub{subs: make(map[uint16]*readySet), fw: fw}
}

func (p *pubSub) subscribe(ao *ActiveObject, signal uint16) {
	p.mu.Lock()
	set, ok := p.subs[signal]
	if !ok {
		set = newReadySet()
		p.subs[signal] = set
	}
	p.mu.Unlock()
	set.insert(ao.priority)
}

func (p *pubSub) unsubscribe(ao *ActiveObject, signal uint16) {
	p.mu.RLock()
	set, ok := p.subs[signal]
	p.mu.RUnlock()
	if !ok {
		return
	}
	set.remove(ao.priority)
}

// publish delivers e to every subscriber of e.Signal, highest priority
// first, per §4.F. Each successful post increments the event's reference
// count; publish is safe to call from any goroutine, including one
// standing in for an ISR.
func (p *pubSub) publish(e *Event) {
	if p.fw.trace != nil {
		p.fw.trace.Emit(TraceRecPublish, 0, func(f *traceFields) { f.U16(e.Signal) })
	}

	p.mu.RLock()
	set, ok := p.subs[e.Signal]
	p.mu.RUnlock()
	if !ok {
		return
	}

	bitmap := set.snapshot()
	for bitmap != 0 {
		prio, ok := highestBit(bitmap)
		if !ok {
			break
		}
		ao := p.fw.ao.get(prio)
		if ao != nil {
			ao.Post(e, 0)
		}
		bitmap &^= uint64(1) << (prio - 1)
	}
}
