package qf

import "testing"

func TestCriticalSectionNestingRestoresPriorState(t *testing.T) {
	cs := newCriticalSection()

	outer := cs.Enter(3)
	prio, active := cs.snapshot()
	if !active || prio != 3 {
		t.Fatalf("expected active priority 3 after outer Enter, got %d (active=%v)", prio, active)
	}

	inner := cs.Enter(1) // lower priority must not lower the tracked ceiling
	prio, active = cs.snapshot()
	if !active || prio != 3 {
		t.Fatalf("expected a lower nested Enter to leave priority at 3, got %d (active=%v)", prio, active)
	}

	cs.Exit(inner)
	prio, active = cs.snapshot()
	if !active || prio != 3 {
		t.Fatalf("expected Exit(inner) to restore priority 3, got %d (active=%v)", prio, active)
	}

	cs.Exit(outer)
	_, active = cs.snapshot()
	if active {
		t.Fatalf("expected Exit(outer) to leave the section inactive")
	}
}

func TestISREntryWithinThresholdAllowsPost(t *testing.T) {
	fw, err := New(WithScheduler(SchedulerQV), WithKernelAwareThreshold(5))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ao := fw.Spawn(1, NewHSM(topState, &hsmCtx{}))

	tok := fw.ISREntry(3)
	defer fw.ISRExit(tok)

	if !ao.Post(NewStaticEvent(sigA, nil), 0) {
		t.Fatalf("expected a kernel-aware ISR to post successfully")
	}
}

func TestISREntryAboveThresholdIsFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Assert to panic when posting from an ISR above the kernel-aware threshold")
		}
	}()
	fw, err := New(WithScheduler(SchedulerQV), WithKernelAwareThreshold(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ao := fw.Spawn(1, NewHSM(topState, &hsmCtx{}))

	tok := fw.ISREntry(5)
	defer fw.ISRExit(tok)

	ao.Post(NewStaticEvent(sigA, nil), 0)
}

func TestISRExitRestoresOuterISRContext(t *testing.T) {
	fw, err := New(WithScheduler(SchedulerQV), WithKernelAwareThreshold(10))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ao := fw.Spawn(1, NewHSM(topState, &hsmCtx{}))

	outer := fw.ISREntry(4)
	inner := fw.ISREntry(1)
	fw.ISRExit(inner)

	if !ao.Post(NewStaticEvent(sigA, nil), 0) {
		t.Fatalf("expected post to succeed once the nested ISR region exits back to the aware outer one")
	}
	fw.ISRExit(outer)

	prio, active := fw.isr.snapshot()
	if active || prio != 0 {
		t.Fatalf("expected ISR context to be fully cleared after the outer ISRExit, got priority %d (active=%v)", prio, active)
	}
}
