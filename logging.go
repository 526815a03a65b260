package coroutine

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger the Scheduler writes lifecycle events
// through: a Processor parking (its transition to idle), Reactor poll
// errors, and panics recovered from a task. Grounded on
// eventloop/logging.go's "package-level, injectable interface; default is
// a no-op-ish real logger" design, but generalized to a real structured
// logging library present in the teacher monorepo (github.com/joeycumines/
// logiface + github.com/joeycumines/stumpy) rather than a hand-rolled one.
type Logger = logiface.Logger[*stumpy.Event]

// NewDefaultLogger builds the Scheduler's out-of-the-box Logger: stumpy's
// zero-allocation JSON writer, to os.Stderr, one line per event — the same
// "external integration, zero-alloc default" the teacher documents for its
// own default writer (logiface-stumpy/factory.go's WithStumpy leaves the
// writer as os.Stderr when none is supplied).
func NewDefaultLogger() *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(),
	)
}

// logProcessorState records a Processor's lifecycle transition at debug
// level: run_next/deque/global/steal/poll/park are all high-frequency, so
// these are logged at Debug rather than Info to keep default verbosity low.
func (s *Scheduler) logProcessorState(p *Processor, state runState) {
	s.logger.Debug().
		Int(`processor`, p.id).
		Str(`state`, state.String()).
		Log(`processor state transition`)
}

// logPanic records a panic recovered from inside a task, per spec.md §7.
func (s *Scheduler) logPanic(t *taskState, pe *PanicError) {
	s.logger.Err().
		Uint64(`task`, t.id).
		Str(`panic`, pe.Error()).
		Log(`task panicked`)
}

// logReactorError records a Reactor Poll failure. These are rate-limited
// by the Scheduler's churn limiter (see scheduler.go) since a misbehaving
// fd registration can otherwise flood the log once per Processor per poll
// cycle.
func (s *Scheduler) logReactorError(p *Processor, err error) {
	if _, allow := s.churnLimiter.Allow(`reactor-error`); !allow {
		return
	}
	s.logger.Warning().
		Int(`processor`, p.id).
		Err(err).
		Log(`reactor poll error`)
}
