package qf

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestQKSchedulerHighestPriorityRunsFirst posts to two active objects before
// Run starts, so both are ready at once, then confirms the higher-priority
// one dispatches first, per the ceiling-gated eligibility in sched_qk.go.
func TestQKSchedulerHighestPriorityRunsFirst(t *testing.T) {
	fw, err := New(WithScheduler(SchedulerQK))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var mu sync.Mutex
	var order []uint8
	record := func(prio uint8) StateHandler {
		return func(h *HSM, e *Event) Outcome {
			switch e.Signal {
			case SigEntry, SigExit:
				return EntryDone()
			case SigInit:
				return Ignored()
			case sigA:
				mu.Lock()
				order = append(order, prio)
				mu.Unlock()
				return Handled()
			}
			return Handled()
		}
	}

	lo := fw.Spawn(3, NewHSM(record(3), nil))
	hi := fw.Spawn(5, NewHSM(record(5), nil))

	// Both posted before Run starts: both priorities become ready at once,
	// so the scheduler must offer the ceiling-gated slot to 5 before 3.
	lo.Post(NewStaticEvent(sigA, nil), 0)
	hi.Post(NewStaticEvent(sigA, nil), 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for both dispatches")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != 5 || order[1] != 3 {
		t.Fatalf("expected dispatch order [5 3], got %v", order)
	}
}

func TestQKScheduleLockBlocksLowerPriorities(t *testing.T) {
	fw, err := New(WithScheduler(SchedulerQK))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dispatched := make(chan struct{}, 1)
	lo := fw.Spawn(2, NewHSM(func(h *HSM, e *Event) Outcome {
		switch e.Signal {
		case SigEntry, SigExit:
			return EntryDone()
		case SigInit:
			return Ignored()
		case sigA:
			dispatched <- struct{}{}
			return Handled()
		}
		return Handled()
	}, nil))

	prior := fw.ScheduleLock(4) // locks out everything at or below priority 4
	lo.Post(NewStaticEvent(sigA, nil), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fw.Run(ctx) }()

	select {
	case <-dispatched:
		t.Fatalf("expected lo to stay blocked while the ceiling is raised above it")
	case <-time.After(100 * time.Millisecond):
	}

	fw.ScheduleUnlock(prior)

	select {
	case <-dispatched:
	case <-time.After(time.Second):
		t.Fatalf("expected lo to dispatch once the ceiling was lowered")
	}

	cancel()
	<-done
}
