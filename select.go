package coroutine

import "time"

// selectArm is the type-erased view of one Select case. Each constructor
// (SendCase, RecvCase, LockCase, DelayCase) wraps the same awaitable used by
// the primitive's own blocking method, so a Select case behaves exactly
// like calling that method directly whenever it wins.
type selectArm interface {
	ready() bool
	suspend(caller Handle) SuspendDecision
	result() any
	// cancel removes this arm's registration if it has not already fired,
	// reporting true when it did so (this arm lost the race) and false
	// when the arm had already fired (this arm won).
	cancel() bool
}

type sendArm[T any] struct{ a *sendAwaitable[T] }

func (s sendArm[T]) ready() bool                      { return s.a.Ready() }
func (s sendArm[T]) suspend(c Handle) SuspendDecision { return s.a.Suspend(c) }
func (s sendArm[T]) result() any                      { return s.a.Resume() }
func (s sendArm[T]) cancel() bool                     { return s.a.cancel() }

// SendCase builds a Select case that sends value on ch. When it wins, its
// result is the ChannelState the send completed with.
func SendCase[T any](ch *Channel[T], value T) selectArm {
	return sendArm[T]{a: &sendAwaitable[T]{ch: ch, value: value}}
}

type recvArm[T any] struct{ a *recvAwaitable[T] }

func (r recvArm[T]) ready() bool                      { return r.a.Ready() }
func (r recvArm[T]) suspend(c Handle) SuspendDecision { return r.a.Suspend(c) }
func (r recvArm[T]) result() any                      { return r.a.Resume() }
func (r recvArm[T]) cancel() bool                     { return r.a.cancel() }

// RecvCase builds a Select case that receives from ch. When it wins, its
// result is a RecvResult[T].
func RecvCase[T any](ch *Channel[T]) selectArm {
	return recvArm[T]{a: &recvAwaitable[T]{ch: ch}}
}

type lockArm struct{ a *lockAwaitable }

func (l lockArm) ready() bool                      { return l.a.Ready() }
func (l lockArm) suspend(c Handle) SuspendDecision { return l.a.Suspend(c) }
func (l lockArm) result() any                      { return l.a.Resume() }
func (l lockArm) cancel() bool                     { return l.a.cancel() }

// LockCase builds a Select case that locks m. When it wins, the caller
// holds m exactly as if it had called m.Lock() directly; the result is
// always struct{}{}.
func LockCase(m *Mutex) selectArm {
	return lockArm{a: &lockAwaitable{m: m}}
}

// delayArm implements selectArm directly (rather than wrapping
// delayAwaitable) because it needs the timerToken produced by
// timerWheel.add in order to support cancellation, which plain Delay has no
// use for.
type delayArm struct {
	d   time.Duration
	tok *timerToken
}

func (a *delayArm) ready() bool { return false }

func (a *delayArm) suspend(caller Handle) SuspendDecision {
	a.tok = caller.task.sched.timers.add(time.Now().Add(a.d), caller)
	return SuspendAndPark
}

func (a *delayArm) result() any { return struct{}{} }

func (a *delayArm) cancel() bool {
	if a.tok == nil {
		return true
	}
	return a.tok.tryCancel()
}

// DelayCase builds a Select case that fires after d elapses, exactly like
// Delay.
func DelayCase(d time.Duration) selectArm {
	return &delayArm{d: d}
}

// Select races two cases, resuming the calling task with whichever
// completes first, per spec.md §9's composed-select design note:
// "whichever completes first wins; the loser is cancelled and its
// resources released." winner is 0 or 1, naming which argument won; value
// holds that case's result (type-assert it back to the concrete type the
// constructor promised, e.g. ChannelState for SendCase or RecvResult[T]
// for RecvCase).
//
// Both cases register under the same Handle, so Handle.resumeOn's
// compare-and-swap already guarantees at most one of them ever wakes the
// caller — this is what spec.md §9 calls out as never having been finished
// in the source. After waking, Select asks both arms to cancel; the one
// that refuses (because it had already fired) is the winner, and the other
// has just had its queued registration removed. If both arms fire at
// nearly the same instant on different goroutines, both cancel calls may
// report "already fired"; spec.md §9 documents composed select as
// unfinished future work rather than promising a resolution for that case,
// so Select breaks the tie by preferring the first argument.
func Select(a, b selectArm) (winner int, value any) {
	t := currentTask()
	if t == nil {
		panic(&ProgrammerError{Op: "Select", Msg: "Select called outside of a running task"})
	}

	if a.ready() {
		return 0, a.result()
	}
	if b.ready() {
		return 1, b.result()
	}

	caller := t.newHandle()

	if a.suspend(caller) == ResumeCaller {
		return 0, a.result()
	}
	if b.suspend(caller) == ResumeCaller {
		a.cancel()
		return 1, b.result()
	}

	t.yielded <- yieldReport{}
	<-t.baton

	if a.cancel() {
		// a was still queued: it did not fire, so b must have.
		return 1, b.result()
	}
	b.cancel()
	return 0, a.result()
}
