// Package qf provides a real-time active-object framework modeled on the
// classic preemptive/cooperative active-object pattern: hierarchical state
// machines dispatched behind fixed-priority event queues, reference-counted
// events drawn from fixed-block pools, an externally-ticked time-event
// wheel, publish/subscribe, and a binary trace channel for post-mortem and
// live analysis.
//
// # Architecture
//
// An application builds a [Framework] with [New], registers one or more
// [EventPool] instances with [Framework.NewPool] (smallest block size first),
// spawns [ActiveObject] instances with [Framework.Spawn] (one [HSM] and one
// bounded [EventQueue] per object, at a unique priority), and starts the
// scheduler with [Framework.Run].
//
// Two scheduling policies are available via [WithScheduler]:
//   - [SchedulerQK]: preemptive, fixed-priority — a higher-priority active
//     object always runs before a lower-priority one once both are ready.
//   - [SchedulerQV]: cooperative, run-to-completion — active objects run in
//     priority order on a single logical thread of control, never preempted.
//
// # Events
//
// Events are reference-counted (see [Event]), either statically allocated
// (pool ID 0, never recycled) or drawn from an [EventPool]. [Framework.Publish]
// delivers to every active object subscribed to a signal, in descending
// priority order; [ActiveObject.Post] and [ActiveObject.PostLIFO] target a
// single recipient.
//
// # Time Events
//
// [TimeEvent] instances are armed against a [TickRate] and decremented only
// by explicit calls to [Framework.Tick] — there is no implicit wall-clock
// timer. This matches the hardware model: a BSP's periodic interrupt service
// routine is expected to call Tick once per hardware tick.
//
// # Thread Safety
//
// [ActiveObject.Post], [ActiveObject.PostLIFO], [Framework.Publish], and
// [Framework.Tick] are safe to call concurrently, including from a
// goroutine standing in for an interrupt service routine (see
// [CriticalSection], [Framework.ISREntry], [Framework.ISRExit]). An [HSM]'s
// state handlers execute exclusively on the scheduler's own goroutine(s) and
// must not be called directly from outside a dispatch.
//
// # Error Handling
//
// Violated invariants are fatal: they are delivered to the registered
// [BSP]'s OnAssert hook via [Assert] and are never returned to an
// application caller — see [AssertionError]. Recoverable-at-API conditions
// (an [ActiveObject.Post] that cannot meet its margin, a [TimeEvent.Disarm]
// racing delivery) are soft-returned as a bool rather than an error: there
// is nothing for the caller to unwrap, only a decision to drop or retry.
//
// # Usage
//
//	fw, err := qf.New(qf.WithScheduler(qf.SchedulerQV), qf.WithMetrics(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	pool := fw.NewPool(64, 4, qf.WithPoolName("small"))
//
//	ao := fw.Spawn(1, myHSM, qf.WithAOName("blinky"))
//
//	if err := fw.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package qf
