package qf

import (
	"context"
	"sync"
)

// qvScheduler is the cooperative, run-to-completion scheduler, per §4.H:
// no per-AO stack, a single main loop dequeues one event from the
// highest-priority ready active object, dispatches it to completion, and
// repeats. When no active object is ready, the BSP's OnIdle hook runs.
//
// Grounded on loop.go's Loop.Run main-loop shape: dequeue highest-priority
// work, execute, repeat.
type qvScheduler struct {
	fw   *Framework
	mu   sync.Mutex
	cond *sync.Cond

	stopped bool
}

func newQVScheduler(fw *Framework) *qvScheduler {
	s := &qvScheduler{fw: fw}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *qvScheduler) wake() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *qvScheduler) run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.stopped = true
		s.cond.Broadcast()
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		for !s.stopped {
			if _, ok := s.fw.ready.highest(); ok {
				break
			}
			s.mu.Unlock()
			getBSP().OnIdle()
			s.mu.Lock()
			if s.stopped {
				break
			}
			if _, ok := s.fw.ready.highest(); !ok {
				s.cond.Wait()
			}
		}
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return ctx.Err()
		}

		prio, ok := s.fw.ready.highest()
		if !ok {
			continue
		}
		if ao := s.fw.ao.get(prio); ao != nil {
			ao.dispatchOne()
		}
	}
}
