package coroutine

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// yieldReport is sent on taskState.yielded exactly once per run-slice, by
// the task's own goroutine, to tell the Machine driving it what happened:
// either the task ran to completion, or it suspended (optionally asking
// the driving Machine to transfer directly to another Handle instead of
// going back to the Scheduler for its next unit of work).
type yieldReport struct {
	completed  bool
	transferTo Handle
	// panicVal and hadJoiner are only meaningful when completed is true;
	// they tell the driving Machine whether an unrecovered panic needs to
	// surface on its own goroutine (nobody was joining) or has already
	// been handed off to a joiner that will re-raise it itself.
	panicVal  *PanicError
	hadJoiner bool
}

// taskState is the frame backing one Task: spec.md §3's "Task frame"
// realized as a goroutine parked on a private channel (see handle.go's
// design note). It is never exposed directly; callers hold a typed
// Task[T] wrapping a *taskState.
type taskState struct {
	id  uint64
	gen atomic.Uint64

	// baton is sent to exactly once per suspension point, by whichever
	// Handle.resumeOn() call reactivates this task; the task's own goroutine
	// is parked receiving from it.
	baton chan struct{}
	// yielded is sent to exactly once per run-slice by the task's own
	// goroutine, to hand control back to the driving Machine.
	yielded chan yieldReport
	// done is closed once the task has fully returned (or panicked),
	// after result/panicVal are populated; Join's fast path uses it.
	done chan struct{}

	sched *Scheduler
	// proc is the Processor this task is conceptually running on for the
	// duration of its current run-slice; set by Handle.resumeOn as part of
	// resuming it, so Spawn can place new children on run_next per
	// spec.md §4.9's spawn-locality rule.
	proc *Processor

	mu        sync.Mutex
	hasJoiner bool
	joiner    Handle

	result   any
	panicVal *PanicError

	spawnedAt time.Time
}

func newTaskState(sched *Scheduler) *taskState {
	return &taskState{
		id:        nextTaskID(),
		baton:     make(chan struct{}),
		yielded:   make(chan yieldReport),
		done:      make(chan struct{}),
		sched:     sched,
		spawnedAt: time.Now(),
	}
}

// runningTasks maps a logical goroutine id to the taskState that goroutine
// is the dedicated, lifelong runner for. This is how free functions like
// Yield() and the Channel/Mutex await helpers locate "the task currently
// executing", without threading a context parameter through every call —
// the same affinity-lookup trick the teacher uses in eventloop/loop.go's
// isLoopThread/getGoroutineID to recognize its own driving goroutine.
var runningTasks sync.Map // uint64 goroutine id -> *taskState

// getGoroutineID returns the current goroutine's runtime id, parsed out of
// runtime.Stack's header line. Grounded verbatim on eventloop/loop.go's
// getGoroutineID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// currentTask returns the taskState owning the calling goroutine, or nil if
// the caller is not a task's dedicated runner goroutine (e.g. it is M0, or
// a Machine's own driving goroutine between run-slices).
func currentTask() *taskState {
	v, ok := runningTasks.Load(getGoroutineID())
	if !ok {
		return nil
	}
	return v.(*taskState)
}

// Task is a handle to a spawned unit of work, per spec.md §4.4. The zero
// Task is not valid; obtain one from Spawn.
type Task[T any] struct {
	t *taskState
}

// Spawn creates a new Task running fn on sched, per spec.md §4.4: spawning
// is non-blocking and places the new task's initial Handle per the
// spawn-locality rule (run_next of the spawning Processor when spawned from
// inside a task, else the global queue) — see Scheduler.scheduleSpawn.
func Spawn[T any](sched *Scheduler, fn func() T) Task[T] {
	t := newTaskState(sched)
	go runTaskBody(t, fn)

	var spawningProc *Processor
	if cur := currentTask(); cur != nil {
		spawningProc = cur.proc
	}
	sched.scheduleSpawn(t.newHandle(), spawningProc)
	return Task[T]{t: t}
}

// runTaskBody is the permanent body of a task's dedicated goroutine. It
// blocks for its first resume, runs fn exactly once, and on return (or
// panic) stores the result and notifies any Join waiter.
func runTaskBody[T any](t *taskState, fn func() T) {
	runningTasks.Store(getGoroutineID(), t)
	defer runningTasks.Delete(getGoroutineID())

	<-t.baton // wait to be resumed for the first time

	var result T
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				t.panicVal = &PanicError{Value: r, Stack: buf[:n]}
			}
		}()
		result = fn()
	}()
	t.result = result
	t.finish()
}

// finish stores completion state, wakes a registered joiner (if any), and
// reports completion to the driving Machine.
func (t *taskState) finish() {
	t.mu.Lock()
	close(t.done)
	joiner, hasJoiner := t.joiner, t.hasJoiner
	t.mu.Unlock()

	t.sched.telemetry.record(taskCompletionRecord{
		taskID:   t.id,
		duration: time.Since(t.spawnedAt),
		panicked: t.panicVal != nil,
	})
	if t.panicVal != nil {
		t.sched.logPanic(t, t.panicVal)
	}

	if hasJoiner {
		t.sched.schedule(joiner, nil)
	}

	t.yielded <- yieldReport{completed: true, panicVal: t.panicVal, hadJoiner: hasJoiner}
}

// joinAwaitable implements SuspensionAwaitable[T] for Task[T].Join: it
// registers the awaiting task's Handle so finish() can schedule it once
// the child completes, per spec.md §4.4 ("on return, ... the parent is
// resumed with it").
type joinAwaitable[T any] struct {
	child *taskState
}

func (j joinAwaitable[T]) Ready() bool {
	select {
	case <-j.child.done:
		return true
	default:
		return false
	}
}

func (j joinAwaitable[T]) Suspend(caller Handle) SuspendDecision {
	j.child.mu.Lock()
	defer j.child.mu.Unlock()
	select {
	case <-j.child.done:
		// Raced: child finished between Ready() and the lock above.
		return ResumeCaller
	default:
	}
	if j.child.hasJoiner {
		panic(&ProgrammerError{Op: "Join", Msg: "a Task may only be joined once"})
	}
	j.child.joiner = caller
	j.child.hasJoiner = true
	return SuspendAndPark
}

func (j joinAwaitable[T]) TransferTarget() Handle { return Handle{} }

func (j joinAwaitable[T]) Resume() T {
	if j.child.panicVal != nil {
		panic(j.child.panicVal)
	}
	return j.child.result.(T)
}

// Join suspends the calling task until t completes, returning its result.
// If t has already completed, Join returns immediately without suspending.
// Join re-panics the child's recovered PanicError in the joining task if
// the child panicked, per spec.md §7.
func (t Task[T]) Join() T {
	return await[T](joinAwaitable[T]{child: t.t})
}

// Done reports whether the task has completed, without blocking.
func (t Task[T]) Done() bool {
	select {
	case <-t.t.done:
		return true
	default:
		return false
	}
}

// yieldAwaitable implements spec.md §4.4's yield: it always suspends and
// pushes the caller onto the bottom of its own Processor's local deque
// (Scheduler.schedule with the task's Processor). The owner pops that deque
// LIFO, so the caller is not placed behind the Handles already queued there:
// on its own Processor, only a Handle waiting in run_next runs before it.
type yieldAwaitable struct{}

func (yieldAwaitable) Ready() bool             { return false }
func (yieldAwaitable) TransferTarget() Handle  { return Handle{} }
func (yieldAwaitable) Resume() struct{}        { return struct{}{} }

func (yieldAwaitable) Suspend(caller Handle) SuspendDecision {
	t := caller.task
	t.sched.schedule(caller, t.proc)
	return SuspendAndPark
}

// Yield suspends the calling task and requeues it on its own Processor's
// local deque (see yieldAwaitable). On that Processor only a task waiting in
// the run_next slot runs before it; other Processors may steal from the
// deque in the meantime.
func Yield() {
	await[struct{}](yieldAwaitable{})
}
