package qf

import "reflect"

// Reserved signals. Applications must not post events carrying these —
// SigEmpty is reserved for the engine's internal ancestor-chain probe and
// SigEntry/SigExit/SigInit are the pseudo-events used to execute entry,
// exit, and initial-transition actions. SigUser is the first signal value
// available to application state machines.
const (
	SigEmpty uint16 = iota
	SigEntry
	SigExit
	SigInit
	SigUser
)

// MaxStateDepth bounds the state hierarchy's nesting depth, matching the
// spec's "bounded by compile-time max" requirement (§7): exceeding it is a
// fatal assertion rather than an unbounded walk.
const MaxStateDepth = 16

var (
	entryEvent = NewStaticEvent(SigEntry, nil)
	exitEvent  = NewStaticEvent(SigExit, nil)
	initEvent  = NewStaticEvent(SigInit, nil)
	probeEvent = NewStaticEvent(SigEmpty, nil)
)

type outcomeKind int

const (
	outcomeHandled outcomeKind = iota
	outcomeIgnored
	outcomeTran
	outcomeSuper
	outcomeEntryDone
	outcomeExitDone
	outcomeInitDone
)

// Outcome is the result of one call into a StateHandler, per spec §9's
// tagged-sum design: the replacement for virtual-dispatch inheritance.
type Outcome struct {
	kind  outcomeKind
	state StateHandler
}

// Handled signals that the event was consumed with no state transition.
func Handled() Outcome { return Outcome{kind: outcomeHandled} }

// Ignored signals that this state does not react to the event. For the
// reserved SigEmpty probe, every non-top state must instead return
// [Super] with its parent; Ignored for SigEmpty is reserved for the top
// state and for a composite state's INIT handler with no initial
// transition.
func Ignored() Outcome { return Outcome{kind: outcomeIgnored} }

// Tran requests a transition to target.
func Tran(target StateHandler) Outcome { return Outcome{kind: outcomeTran, state: target} }

// Super delegates handling to parent (the state's direct superstate). Also
// used to answer the reserved ancestor-chain probe.
func Super(parent StateHandler) Outcome { return Outcome{kind: outcomeSuper, state: parent} }

// EntryDone marks successful handling of a SigEntry pseudo-event.
func EntryDone() Outcome { return Outcome{kind: outcomeEntryDone} }

// ExitDone marks successful handling of a SigExit pseudo-event.
func ExitDone() Outcome { return Outcome{kind: outcomeExitDone} }

// InitDone requests descent into target as part of an initial-transition
// chain (a restricted, exit-free Tran used only in response to SigInit).
func InitDone(target StateHandler) Outcome { return Outcome{kind: outcomeInitDone, state: target} }

// StateHandler is a state's polymorphic dispatch capability: given the
// owning HSM and an event (including the reserved pseudo-events SigEntry,
// SigExit, SigInit, and the ancestor-chain probe SigEmpty), it returns an
// Outcome. Handlers are ordinary functions or method values; the engine
// identifies a state by the function pointer reflect.ValueOf(fn).Pointer()
// returns, so a given state's handler must always be the same function
// value (not a freshly allocated closure) across calls.
type StateHandler func(h *HSM, e *Event) Outcome

func stateID(s StateHandler) uintptr {
	if s == nil {
		return 0
	}
	return reflect.ValueOf(s).Pointer()
}

// HSM is one hierarchical state machine instance. Context carries
// application data the state handlers operate on; the engine itself is
// data-structure agnostic.
type HSM struct {
	top     StateHandler
	current StateHandler
	temp    StateHandler
	Context any

	historical map[uintptr]bool
	history    map[uintptr]StateHandler
}

// NewHSM creates a state machine rooted at top. historyStates names any
// composite states that record history per §4.C; entry to one of them
// consults the recorded substate before running its initial transition.
func NewHSM(top StateHandler, context any, historyStates ...StateHandler) *HSM {
	h := &HSM{
		top:        top,
		Context:    context,
		historical: make(map[uintptr]bool, len(historyStates)),
		history:    make(map[uintptr]StateHandler, len(historyStates)),
	}
	for _, s := range historyStates {
		h.historical[stateID(s)] = true
	}
	return h
}

// Current returns the currently active (leaf) state.
func (h *HSM) Current() StateHandler { return h.current }

// IsIn reports whether state s is the current state or one of its
// ancestors, i.e. whether the state machine is "in" s per UML semantics.
func (h *HSM) IsIn(s StateHandler) bool {
	target := stateID(s)
	cur := h.current
	for i := 0; i <= MaxStateDepth; i++ {
		if stateID(cur) == target {
			return true
		}
		if stateID(cur) == stateID(h.top) {
			return false
		}
		cur = h.superOf(cur)
	}
	Assert(false, "hsm", 0, "state hierarchy depth overflow in IsIn")
	return false
}

// Start performs the initial pseudotransition (§4.C): entry of the top
// state followed by the initial-transition chain down to the leaf state
// the application's top handler designates.
func (h *HSM) Start() {
	Assert(h.current == nil, "hsm", 0, "HSM already started")
	h.callEntry(h.top)
	h.runInitChain(h.top)
}

// Dispatch delivers one event to the state machine, run-to-completion
// (§4.C): the call does not return until every entry/exit/init action the
// resulting transition requires has executed.
func (h *HSM) Dispatch(e *Event) {
	Assert(h.current != nil, "hsm", 0, "Dispatch called before Start")
	Assert(e.Signal >= SigUser, "hsm", 0, "Dispatch called with a reserved signal")

	s := h.current
	var handling StateHandler
	depth := 0
	for {
		depth++
		Assert(depth <= MaxStateDepth, "hsm", 0, "state hierarchy depth overflow during dispatch")

		out := s(h, e)
		switch out.kind {
		case outcomeHandled, outcomeIgnored:
			return
		case outcomeTran:
			handling = s
			h.executeTransition(handling, out.state)
			return
		case outcomeSuper:
			s = out.state
		default:
			Assert(false, "hsm", 0, "unexpected outcome from a top-level dispatch")
			return
		}
	}
}

// superOf returns s's direct superstate, using the reserved SigEmpty probe.
// The top state is a fixed point of this function (its parent is itself).
func (h *HSM) superOf(s StateHandler) StateHandler {
	if stateID(s) == stateID(h.top) {
		return h.top
	}
	out := s(h, probeEvent)
	Assert(out.kind == outcomeSuper, "hsm", 0, "state handler did not return Super for the ancestor-chain probe")
	return out.state
}

// ancestorChain returns s, superOf(s), ..., top, bounded by MaxStateDepth.
func (h *HSM) ancestorChain(s StateHandler) []StateHandler {
	chain := make([]StateHandler, 0, MaxStateDepth)
	cur := s
	for i := 0; i <= MaxStateDepth; i++ {
		chain = append(chain, cur)
		if stateID(cur) == stateID(h.top) {
			return chain
		}
		cur = h.superOf(cur)
	}
	Assert(false, "hsm", 0, "state hierarchy depth overflow computing ancestor chain")
	return chain
}

// findLCA locates the least common ancestor of handling and target, per
// the seven canonical cases in §4.C. Self-transitions (handling == target)
// are special-cased to the state's own parent, forcing both an exit and a
// re-entry of that state.
func (h *HSM) findLCA(handling, target StateHandler) StateHandler {
	if stateID(handling) == stateID(target) {
		return h.superOf(handling)
	}
	handlingChain := h.ancestorChain(handling)
	inChain := make(map[uintptr]bool, len(handlingChain))
	for _, s := range handlingChain {
		inChain[stateID(s)] = true
	}
	cur := target
	for i := 0; i <= MaxStateDepth; i++ {
		if inChain[stateID(cur)] {
			return cur
		}
		if stateID(cur) == stateID(h.top) {
			return h.top
		}
		cur = h.superOf(cur)
	}
	Assert(false, "hsm", 0, "state hierarchy depth overflow computing LCA")
	return h.top
}

// executeTransition runs the exit path, LCA search, entry path, and
// initial-transition chain for one TRAN(target) outcome produced by
// handling, per §4.C.
func (h *HSM) executeTransition(handling, target StateHandler) {
	lca := h.findLCA(handling, target)

	cur := h.current
	var exitedChild StateHandler
	for i := 0; i <= MaxStateDepth; i++ {
		if stateID(cur) == stateID(lca) {
			break
		}
		if h.historical[stateID(cur)] && exitedChild != nil {
			h.history[stateID(cur)] = exitedChild
		}
		h.callExit(cur)
		Assert(i < MaxStateDepth, "hsm", 0, "state hierarchy depth overflow on exit path")
		exitedChild = cur
		cur = h.superOf(cur)
	}

	entryChain := h.ancestorChain(target)
	// entryChain is [target, ..., top]; entries run outermost-first, so walk
	// it backwards down to (but not including) lca.
	start := len(entryChain)
	for i, s := range entryChain {
		if stateID(s) == stateID(lca) {
			start = i
			break
		}
	}
	for i := start - 1; i >= 0; i-- {
		h.callEntry(entryChain[i])
	}

	h.current = target
	h.temp = target
	h.runInitChain(target)
}

// runInitChain issues SigInit to s and follows any InitDone/Tran chain
// downward, calling ENTRY on each newly targeted substate, until a handler
// responds Ignored or Super, i.e. has no initial transition (§4.C). If s
// records history, the recorded substate is entered first.
func (h *HSM) runInitChain(s StateHandler) {
	if h.historical[stateID(s)] {
		if recorded, ok := h.history[stateID(s)]; ok {
			for _, anc := range h.reversedChainExcluding(recorded, s) {
				h.callEntry(anc)
			}
			s = recorded
		}
	}

	for i := 0; i <= MaxStateDepth; i++ {
		out := s(h, initEvent)
		switch out.kind {
		case outcomeTran, outcomeInitDone:
			h.callEntry(out.state)
			s = out.state
		case outcomeIgnored, outcomeSuper:
			h.current = s
			h.temp = s
			return
		default:
			Assert(false, "hsm", 0, "a SigInit handler must return InitDone, Ignored, or Super")
			return
		}
	}
	Assert(false, "hsm", 0, "state hierarchy depth overflow in initial-transition chain")
}

// reversedChainExcluding returns the ancestor chain from descendant up to
// (but not including) ancestor, in outermost-first (entry) order.
func (h *HSM) reversedChainExcluding(descendant, ancestor StateHandler) []StateHandler {
	chain := h.ancestorChain(descendant)
	cut := len(chain)
	for i, s := range chain {
		if stateID(s) == stateID(ancestor) {
			cut = i
			break
		}
	}
	chain = chain[:cut]
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func (h *HSM) callEntry(s StateHandler) {
	out := s(h, entryEvent)
	Assert(out.kind == outcomeEntryDone || out.kind == outcomeHandled, "hsm", 0, "a SigEntry handler must return EntryDone")
	_ = out
}

func (h *HSM) callExit(s StateHandler) {
	out := s(h, exitEvent)
	Assert(out.kind == outcomeExitDone || out.kind == outcomeHandled, "hsm", 0, "a SigExit handler must return ExitDone")
	_ = out
}
