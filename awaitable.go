package coroutine

// SuspendDecision is the directive a SuspensionAwaitable's Suspend hook
// returns, per spec.md §4.1.
type SuspendDecision int

const (
	// ResumeCaller means the operation actually completed without needing
	// to suspend (e.g. the awaitable raced and became ready between Ready
	// and Suspend); the caller resumes inline, in the same run-slice.
	ResumeCaller SuspendDecision = iota
	// SuspendAndPark means the task suspends; some future event will hand
	// the captured Handle back to the Scheduler for ordinary re-scheduling
	// (run_next → local deque → global queue).
	SuspendAndPark
	// SuspendAndTransfer means the task suspends and control transfers
	// directly to another Handle on the same execution slot (symmetric
	// transfer), without a scheduler round trip.
	SuspendAndTransfer
)

// SuspensionAwaitable is the contract every primitive suspension point in
// this module implements (spec.md §4.1): Channel send/recv, Mutex lock,
// Reactor operations, Task join, and yield are all short-lived values
// satisfying this interface for exactly one await.
//
// Ready reports whether the operation already has a value, with no need to
// suspend at all. Suspend is invoked only when Ready returned false; it
// receives the awaiting task's own Handle (so the awaitable can capture it
// into a wait queue or a completion table) and returns a SuspendDecision.
// Resume is invoked once the operation is complete — either because Ready
// was true, Suspend returned ResumeCaller, or the task has been resumed
// after parking — and produces the await-result.
type SuspensionAwaitable[T any] interface {
	Ready() bool
	Suspend(caller Handle) SuspendDecision
	// TransferTarget is only consulted when Suspend returns
	// SuspendAndTransfer.
	TransferTarget() Handle
	Resume() T
}

// await runs the suspension protocol described in spec.md §4.1 against a,
// from inside the currently-running task's own goroutine. It must only be
// called from code executing as part of a task body (i.e. with
// currentTask() non-nil); calling it from M0 or a bare goroutine is a
// ProgrammerError.
func await[T any](a SuspensionAwaitable[T]) T {
	t := currentTask()
	if t == nil {
		panic(&ProgrammerError{Op: "await", Msg: "await called outside of a running task"})
	}

	if a.Ready() {
		return a.Resume()
	}

	caller := t.newHandle()
	switch a.Suspend(caller) {
	case ResumeCaller:
		return a.Resume()

	case SuspendAndTransfer:
		target := a.TransferTarget()
		t.yielded <- yieldReport{transferTo: target}
		<-t.baton
		return a.Resume()

	default: // SuspendAndPark
		t.yielded <- yieldReport{}
		<-t.baton
		return a.Resume()
	}
}
