package qf

import "sync"

// CriticalSection is a nestable, save-restore tracker of the priority of the
// region currently entered. It does not exclude other goroutines between
// Enter and Exit; queue ops, pool allocate/free, the ready set, subscriber
// sets, and timer lists are guarded by their own locks. Framework.ISREntry
// and Framework.ISRExit are built on one: nesting preserves whatever priority
// was tracked before the call rather than blindly clearing it, mirroring
// ScheduleLock/ScheduleUnlock's ceiling save/restore.
type CriticalSection struct {
	mu       sync.Mutex
	active   bool
	priority uint8
}

// CriticalSectionToken is returned by CriticalSection.Enter and consumed by
// a matching Exit to restore the section's prior state.
type CriticalSectionToken struct {
	prior     uint8
	wasActive bool
}

func newCriticalSection() *CriticalSection { return &CriticalSection{} }

// Enter raises the section's tracked priority to at least prio (never
// lowers it) and returns a token capturing whatever was current before this
// call, for Exit to restore.
func (cs *CriticalSection) Enter(prio uint8) CriticalSectionToken {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	tok := CriticalSectionToken{prior: cs.priority, wasActive: cs.active}
	if !cs.active || prio > cs.priority {
		cs.priority = prio
	}
	cs.active = true
	return tok
}

// Exit restores the section to the state captured by tok.
func (cs *CriticalSection) Exit(tok CriticalSectionToken) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.priority = tok.prior
	cs.active = tok.wasActive
}

// snapshot returns the section's current priority and whether it is active.
func (cs *CriticalSection) snapshot() (priority uint8, active bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.priority, cs.active
}

// ISRToken is returned by Framework.ISREntry and passed to Framework.ISRExit
// to restore whatever ISR context (if any) was current before entry.
type ISRToken = CriticalSectionToken

// ISREntry marks the calling goroutine as standing in for an ISR running at
// isrPrio, per §5's "ISRs ... must bracket their body with ISR_ENTRY /
// ISR_EXIT" rule. Nesting is supported: an inner ISREntry only raises the
// tracked priority, and the matching ISRExit restores exactly what was
// current beforehand.
func (fw *Framework) ISREntry(isrPrio uint8) ISRToken {
	return fw.isr.Enter(isrPrio)
}

// ISRExit restores the ISR context captured by a prior ISREntry call.
func (fw *Framework) ISRExit(tok ISRToken) {
	fw.isr.Exit(tok)
}

// assertISRAware is called from every framework service entry point
// reachable from ISR context (Post, PostLIFO, Publish, Tick) to enforce
// §5/§7's kernel-aware-threshold rule: an ISR priority above the configured
// threshold is "unaware" and must not call framework services at all.
func (fw *Framework) assertISRAware() {
	prio, active := fw.isr.snapshot()
	if !active {
		return
	}
	Assert(prio <= fw.opts.kernelAwareThreshold, "isr", int(prio), "posting from an ISR above the kernel-aware threshold")
}
