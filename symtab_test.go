package qf

import (
	"runtime"
	"testing"
	"time"
)

type fakeTraceObject struct {
	n      string
	holder *traceObjectHolder
}

func (f *fakeTraceObject) traceName() string { return f.n }

func (f *fakeTraceObject) traceHolder() *traceObjectHolder {
	if f.holder == nil {
		f.holder = &traceObjectHolder{name: f.n}
	}
	return f.holder
}

func TestSymtabRegisterAndName(t *testing.T) {
	s := newSymtab()
	obj := &fakeTraceObject{n: "widget"}

	id := s.register(obj)
	if id == 0 {
		t.Fatalf("expected a non-zero object id")
	}
	if got := s.name(id); got != "widget" {
		t.Fatalf("got name %q, want widget", got)
	}
}

func TestSymtabUnknownIDReturnsEmptyName(t *testing.T) {
	s := newSymtab()
	if got := s.name(999); got != "" {
		t.Fatalf("expected empty name for unknown id, got %q", got)
	}
}

func TestSymtabScavengeIsBounded(t *testing.T) {
	s := newSymtab()
	for i := 0; i < 10; i++ {
		s.register(&fakeTraceObject{n: "obj"})
	}
	// scavenge should not panic on a bounded batch, regardless of liveness.
	s.scavenge(3)
	s.scavenge(3)
	s.scavenge(100)
}

func TestSymtabNameSurvivesGCWhileObjectIsReachable(t *testing.T) {
	s := newSymtab()
	obj := &fakeTraceObject{n: "widget"}
	id := s.register(obj)

	for range 5 {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}

	if got := s.name(id); got != "widget" {
		t.Fatalf("expected name to survive GC while obj is still reachable, got %q", got)
	}
	runtime.KeepAlive(obj)
}

func TestSymtabScavengeDropsEntryOnceObjectIsUnreachable(t *testing.T) {
	s := newSymtab()

	var id uint32
	func() {
		obj := &fakeTraceObject{n: "ephemeral"}
		id = s.register(obj)
	}() // obj (and its holder) become unreachable once this returns

	for range 10 {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	s.scavenge(100)

	if got := s.name(id); got != "" {
		t.Log("Note: GC'd object was not cleaned up (non-deterministic GC behavior)")
	} else {
		t.Log("GC'd object's dictionary entry was successfully cleaned up")
	}
}

func TestActiveObjectTraceNameFallsBackToGeneric(t *testing.T) {
	fw := newTestFramework(t)
	ao := fw.Spawn(1, NewHSM(topState, &hsmCtx{}))
	if ao.traceName() != "ao" {
		t.Fatalf("expected unnamed active object to trace as 'ao', got %q", ao.traceName())
	}

	named := fw.Spawn(2, NewHSM(topState, &hsmCtx{}), WithAOName("blinker"))
	if named.traceName() != "blinker" {
		t.Fatalf("expected named active object to trace as 'blinker', got %q", named.traceName())
	}
}
