package coroutine

import "sync/atomic"

// runState is a Processor's lifecycle state, adapted from
// eventloop/state.go's FastState/LoopState: a lock-free, cache-line-padded
// CAS state machine, used here for a Processor's
// running/spinning/polling/idle cycle (spec.md §4.7). The Scheduler does not
// use it; it tracks its own lifecycle with its running/shuttingDown flags.
type runState uint64

const (
	// stateAwake: constructed, not yet started.
	stateAwake runState = iota
	// stateRunning: actively executing a task.
	stateRunning
	// stateSpinning: a Processor with an empty local queue, searching
	// run_next/global queue/other deques before parking (spec.md §4.9's
	// spinning policy).
	stateSpinning
	// stateIdle: parked, holding no work, waiting to be woken by a spawn
	// or a reactor completion.
	stateIdle
	// statePolling: blocked inside the Reactor's poll call.
	statePolling
	// stateTerminating: shutdown requested, draining in progress.
	stateTerminating
	// stateTerminated: fully stopped; terminal.
	stateTerminated
)

func (s runState) String() string {
	switch s {
	case stateAwake:
		return "awake"
	case stateRunning:
		return "running"
	case stateSpinning:
		return "spinning"
	case stateIdle:
		return "idle"
	case statePolling:
		return "polling"
	case stateTerminating:
		return "terminating"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// fastState is a lock-free state machine with cache-line padding, directly
// adapted from eventloop/state.go's FastState to use this module's
// runState enum instead of LoopState.
type fastState struct { //nolint:unused
	_ [64]byte
	v atomic.Uint64
	_ [56]byte
}

func newFastState(initial runState) *fastState {
	s := &fastState{}
	s.v.Store(uint64(initial))
	return s
}

func (s *fastState) Load() runState {
	return runState(s.v.Load())
}

func (s *fastState) Store(state runState) {
	s.v.Store(uint64(state))
}

func (s *fastState) TryTransition(from, to runState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

func (s *fastState) TransitionAny(validFrom []runState, to runState) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(uint64(from), uint64(to)) {
			return true
		}
	}
	return false
}

func (s *fastState) IsTerminal() bool {
	return s.Load() == stateTerminated
}
