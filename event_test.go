package qf

import "testing"

func TestEventPoolAllocatesUpToCapacity(t *testing.T) {
	p := newEventPool(1, 16, 2, &poolOptions{}, nil)

	e1 := p.New(sigA, nil)
	e2 := p.New(sigA, nil)
	if p.Free() != 0 {
		t.Fatalf("expected 0 free blocks, got %d", p.Free())
	}

	GarbageCollect(e1)
	GarbageCollect(e2)
	if p.Free() != 2 {
		t.Fatalf("expected 2 free blocks after release, got %d", p.Free())
	}
}

func TestEventPoolExhaustionIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Assert to panic on pool exhaustion")
		}
	}()
	p := newEventPool(1, 16, 1, &poolOptions{}, nil)
	p.New(sigA, nil)
	p.New(sigA, nil) // capacity is 1; this must be fatal
}

func TestEventRefCountGarbageCollection(t *testing.T) {
	p := newEventPool(1, 16, 1, &poolOptions{}, nil)
	e := p.New(sigA, nil)

	IncrementRef(e)
	IncrementRef(e)
	if RefCount(e) != 2 {
		t.Fatalf("expected ref count 2, got %d", RefCount(e))
	}

	GarbageCollect(e)
	if p.Free() != 0 {
		t.Fatalf("event should still be live after one of two references is released")
	}

	GarbageCollect(e)
	if p.Free() != 1 {
		t.Fatalf("event should be released back to the pool after the last reference")
	}
}

func TestEventRefCountUnderflowIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Assert to panic on ref-count underflow")
		}
	}()
	p := newEventPool(1, 16, 1, &poolOptions{}, nil)
	e := p.New(sigA, nil)
	GarbageCollect(e) // releases it
	GarbageCollect(e) // underflow
}

func TestStaticEventIgnoresRefCounting(t *testing.T) {
	e := NewStaticEvent(sigA, "payload")
	GarbageCollect(e)
	GarbageCollect(e)
	if e.Payload != "payload" {
		t.Fatalf("static event payload should be untouched")
	}
}

func TestEventPoolLowWaterTracksMinimum(t *testing.T) {
	p := newEventPool(1, 16, 3, &poolOptions{}, nil)
	a := p.New(sigA, nil)
	b := p.New(sigA, nil)
	GarbageCollect(a)
	GarbageCollect(b)

	if p.LowWater() != 1 {
		t.Fatalf("expected low water of 1 (3 capacity - 2 in use), got %d", p.LowWater())
	}
}
