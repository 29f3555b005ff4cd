package runner

import (
	"sync"
	"sync/atomic"
	"time"
)

const tickInterval = 200 * time.Millisecond

// idleDeadline selects between the two contract constants from spec.md
// §4.4 based on the request's force_exit flag. These values must be
// reproduced verbatim by any implementation.
func idleDeadline(forceExit bool, forceMS, normalMS int) time.Duration {
	if forceExit {
		return time.Duration(forceMS) * time.Millisecond
	}
	return time.Duration(normalMS) * time.Millisecond
}

// supervisor watches a run for idleness and forcibly stops the shared JS
// runtime if the deadline is exceeded, guaranteeing Executor.Run returns even
// when user code has leaked a handle that would otherwise keep the event
// loop alive forever (spec.md §4.4).
type supervisor struct {
	deadline time.Duration
	stopFn   func()

	lastEventNano atomic.Int64
	forced        atomic.Bool
	stopOnce      sync.Once
	forceOnce     sync.Once
	done          chan struct{}
}

func newSupervisor(deadline time.Duration, stopFn func()) *supervisor {
	s := &supervisor{
		deadline: deadline,
		stopFn:   stopFn,
		done:     make(chan struct{}),
	}
	s.touch()
	return s
}

// touch records that a framework event was just observed. Called by the
// Executor every time it receives an event.
func (s *supervisor) touch() {
	s.lastEventNano.Store(time.Now().UnixNano())
}

// wasForced reports whether this supervisor ended the run by force.
func (s *supervisor) wasForced() bool {
	return s.forced.Load()
}

// watch runs the idle-detection ticker. It does not itself hold anything
// alive that the JS runtime's own drain detection depends on: it only
// reads the shared timestamp and, at most once, calls stopFn.
func (s *supervisor) watch() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, s.lastEventNano.Load())
			if time.Since(last) >= s.deadline {
				s.forceOnce.Do(func() {
					s.forced.Store(true)
					s.stopFn()
				})
				return
			}
		case <-s.done:
			return
		}
	}
}

// stop tells watch to exit without forcing a stop. Safe to call more than
// once; the Executor calls it after Run returns.
func (s *supervisor) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}
