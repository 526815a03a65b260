package coroutine

import (
	"sync/atomic"
)

// Handle is an opaque, copyable reference to one suspension point in one
// task, per spec.md §3. A Handle may be resumed at most once; a duplicate
// resumption is rejected, with resumeOn reporting false (see resumeOn).
//
// Design note (see DESIGN.md): the source material models Handle as a
// type-erased pointer to a compiler-generated coroutine frame (as in a C++
// coroutine). Go has no such hook; every Task in this module is backed by
// a real goroutine parked on a private rendezvous channel at each
// suspension point. Handle therefore carries a generation counter
// (spec.md §9's recommended hardening) alongside the task pointer: resuming
// with a stale generation — the thief/reactor-completion-arrives-too-late
// case spec.md §9 calls out — is detected and rejected rather than
// silently corrupting a goroutine that has already moved on to its next
// suspension point.
type Handle struct {
	task *taskState
	gen  uint64
}

// IsZero reports whether h is the zero Handle (never valid to resume).
func (h Handle) IsZero() bool {
	return h.task == nil
}

// id returns a diagnostic-only numeric identity, stable for the lifetime
// of the task frame. Used by logging/metrics, never by scheduling logic.
func (h Handle) id() uint64 {
	if h.task == nil {
		return 0
	}
	return h.task.id
}

// currentGeneration loads the task's live generation counter.
func (t *taskState) currentGeneration() uint64 {
	return t.gen.Load()
}

// newHandle mints a Handle for the task's current suspension point.
func (t *taskState) newHandle() Handle {
	return Handle{task: t, gen: t.gen.Load()}
}

// resumeOn transfers control to the task referenced by h, first recording p
// as the Processor driving it. At most one call per suspension point
// succeeds; it is made by a Machine, either for a Handle popped off a run
// queue or for a symmetric transfer.
//
// It reports false, instead of panicking, when h's generation no longer
// matches the task's live generation. Ordinarily that means a genuine
// double-resume bug, but it is also the expected outcome for the losing arm
// of a Select (see select.go): both arms share one Handle value, and
// whichever fires first consumes its generation via the same
// CompareAndSwap race that already protects every other caller. A Select
// registers its two arms under primitive-specific locks that prevent a
// third, fourth, ... resume attempt from ever existing, so collapsing this
// into a non-fatal outcome does not widen the window for real bugs.
func (h Handle) resumeOn(p *Processor) bool {
	if h.task == nil {
		panic(&ProgrammerError{Op: "resume", Msg: "resuming the zero Handle"})
	}
	if !h.task.gen.CompareAndSwap(h.gen, h.gen+1) {
		return false
	}
	h.task.proc = p
	h.task.baton <- struct{}{}
	return true
}

// taskIDCounter is the monotonic source for taskState.id, used only for
// diagnostics (spec.md §3: "monotonic task id (for diagnostics)").
var taskIDCounter atomic.Uint64

func nextTaskID() uint64 {
	return taskIDCounter.Add(1)
}
