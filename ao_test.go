package qf

import "testing"

func newTestFramework(t *testing.T) *Framework {
	t.Helper()
	fw, err := New(WithScheduler(SchedulerQV))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return fw
}

func TestActiveObjectDispatchOneDrainsQueue(t *testing.T) {
	fw := newTestFramework(t)
	ctx := &hsmCtx{}
	ao := fw.Spawn(1, NewHSM(topState, ctx))
	ao.HSM().Start()

	if ao.dispatchOne() {
		t.Fatalf("expected dispatchOne on an empty queue to return false")
	}

	ao.Post(NewStaticEvent(sigA, nil), 0)
	if !ao.dispatchOne() {
		t.Fatalf("expected dispatchOne to process the posted event")
	}
	if stateID(ao.HSM().Current()) != stateID(s21State) {
		t.Fatalf("expected sigA to drive the HSM to s21State")
	}
}

func TestActiveObjectDeferAndRecallRoundTrip(t *testing.T) {
	fw := newTestFramework(t)
	ctx := &hsmCtx{}
	ao := fw.Spawn(2, NewHSM(topState, ctx))
	ao.HSM().Start()

	e := NewStaticEvent(sigB, nil)
	ao.Post(e, 0)

	deferred, ok := ao.queue.Get()
	if !ok {
		t.Fatalf("expected to dequeue the posted event")
	}
	ao.Defer(deferred)
	GarbageCollect(deferred) // the incoming queue's share, per the Post/Get pairing

	if !ao.Recall() {
		t.Fatalf("expected Recall to find a deferred event")
	}

	replayed, ok := ao.queue.Get()
	if !ok || replayed.Signal != sigB {
		t.Fatalf("expected the recalled event to be requeued")
	}
	GarbageCollect(replayed)

	if ao.Recall() {
		t.Fatalf("expected a second Recall with nothing deferred to return false")
	}
}

func TestActiveObjectRegistryRejectsDuplicatePriority(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Assert to panic on duplicate priority registration")
		}
	}()
	fw := newTestFramework(t)
	fw.Spawn(3, NewHSM(topState, &hsmCtx{}))
	fw.Spawn(3, NewHSM(topState, &hsmCtx{}))
}

func TestActiveObjectNameAndPriority(t *testing.T) {
	fw := newTestFramework(t)
	ao := fw.Spawn(4, NewHSM(topState, &hsmCtx{}), WithAOName("sensor"))
	if ao.Priority() != 4 {
		t.Fatalf("expected priority 4, got %d", ao.Priority())
	}
	if ao.Name() != "sensor" {
		t.Fatalf("expected name 'sensor', got %q", ao.Name())
	}
}
