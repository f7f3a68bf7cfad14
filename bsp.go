package qf

import (
	"fmt"
	"sync"
)

// BSP is the board-support-package contract an application provides. It is
// an external collaborator per spec §6: board init, idle power management,
// and the fatal-assertion sink all live on the application side of this
// boundary, never inside the framework itself.
type BSP interface {
	// Init performs board/clock/peripheral initialization before the
	// scheduler starts.
	Init()
	// OnStartup runs once, immediately before the scheduler begins taking
	// dispatch decisions.
	OnStartup()
	// OnIdle runs on the idle priority (QK) or when no active object is
	// ready (QV). It may block briefly (simulating WFI) but must return so
	// the scheduler can re-poll the ready set.
	OnIdle()
	// OnCleanup runs once, after Run returns (normal shutdown only).
	OnCleanup()
	// OnAssert handles a fatal invariant violation. Per spec it must not
	// return; a real BSP resets the board or halts. If it does return,
	// Assert treats that as a contract violation and panics.
	OnAssert(module string, line int, reason string)
}

// TraceTransport drains the trace channel's ring buffer asynchronously, per
// spec §4.I / §6. It is an external collaborator — UART/TCP/semihosting are
// all valid implementations — and is never invoked synchronously from a
// dispatch.
type TraceTransport interface {
	// QSOnStartup prepares the transport before the first flush.
	QSOnStartup() error
	// QSOnFlush writes buffered trace bytes out. May block.
	QSOnFlush(data []byte) error
	// QSOnReset is called when the trace ring buffer is reset (e.g. on a
	// receive-side RESET command).
	QSOnReset()
	// QSOnGetTime returns the timestamp to embed in the next trace record.
	QSOnGetTime() uint32
}

// NoOpBSP is a BSP that does nothing except panic from OnAssert, suitable
// for tests and for hosts that have not wired a real board.
type NoOpBSP struct{}

func (NoOpBSP) Init()       {}
func (NoOpBSP) OnStartup()  {}
func (NoOpBSP) OnIdle()     {}
func (NoOpBSP) OnCleanup()  {}
func (NoOpBSP) OnAssert(module string, line int, reason string) {
	panic(&AssertionError{Module: module, Line: line, Reason: reason})
}

var (
	globalBSP struct {
		sync.RWMutex
		bsp BSP
	}
)

// SetBSP installs the process-wide BSP used by Assert. Must be called
// before Framework.Run; defaults to NoOpBSP if never called.
func SetBSP(bsp BSP) {
	globalBSP.Lock()
	defer globalBSP.Unlock()
	globalBSP.bsp = bsp
}

func getBSP() BSP {
	globalBSP.RLock()
	defer globalBSP.RUnlock()
	if globalBSP.bsp != nil {
		return globalBSP.bsp
	}
	return NoOpBSP{}
}

// Assert checks a framework invariant. On violation it logs at LevelError
// and hands the condition to the registered BSP's OnAssert, which per
// contract must not return. If OnAssert does return, Assert panics rather
// than let a caller proceed past a violated invariant (§7).
func Assert(cond bool, module string, line int, reason string) {
	if cond {
		return
	}
	err := &AssertionError{Module: module, Line: line, Reason: reason}
	logFatal(module, reason, err)
	getBSP().OnAssert(module, line, reason)
	panic(fmt.Errorf("qf: BSP.OnAssert returned for %w, which violates its contract", err))
}
