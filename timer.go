package coroutine

import (
	"container/heap"
	"sync"
	"time"
)

// timerEntry is one pending Delay, grounded on eventloop/loop.go's
// timer/timerHeap (container/heap min-heap keyed by fire time), adapted to
// hand back a Handle instead of invoking a callback.
type timerEntry struct {
	when   time.Time
	handle Handle
	token  *timerToken
}

// timerToken lets a caller cancel a pending Delay before it fires, used by
// select.go's delayArm. The first of tryFire/tryCancel to run wins; the
// other is a no-op. A plain Delay() call gets a token too but never looks
// at it.
type timerToken struct {
	mu    sync.Mutex
	done  bool
	fired bool
}

func (tok *timerToken) tryFire() bool {
	tok.mu.Lock()
	defer tok.mu.Unlock()
	if tok.done {
		return false
	}
	tok.done = true
	tok.fired = true
	return true
}

func (tok *timerToken) tryCancel() bool {
	tok.mu.Lock()
	defer tok.mu.Unlock()
	if tok.done {
		return false
	}
	tok.done = true
	return true
}

type timerHeap []timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// timerWheel runs a single dedicated goroutine that sleeps until the
// earliest pending Delay fires, then hands its Handle back to the
// Scheduler for ordinary rescheduling. One per Scheduler.
type timerWheel struct {
	sched *Scheduler

	mu      sync.Mutex
	heap    timerHeap
	reset   chan struct{}
	closeCh chan struct{}
}

func newTimerWheel(sched *Scheduler) *timerWheel {
	return &timerWheel{
		sched:   sched,
		reset:   make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

func (w *timerWheel) add(when time.Time, h Handle) *timerToken {
	tok := &timerToken{}
	w.mu.Lock()
	heap.Push(&w.heap, timerEntry{when: when, handle: h, token: tok})
	earliest := w.heap[0].when.Equal(when)
	w.mu.Unlock()

	if earliest {
		select {
		case w.reset <- struct{}{}:
		default:
		}
	}
	return tok
}

func (w *timerWheel) run() {
	for {
		w.mu.Lock()
		var sleep time.Duration
		hasTimer := len(w.heap) > 0
		if hasTimer {
			sleep = time.Until(w.heap[0].when)
		}
		w.mu.Unlock()

		var timerCh <-chan time.Time
		var t *time.Timer
		if hasTimer {
			if sleep <= 0 {
				w.fireExpired()
				continue
			}
			t = time.NewTimer(sleep)
			timerCh = t.C
		}

		select {
		case <-w.closeCh:
			if t != nil {
				t.Stop()
			}
			return
		case <-w.reset:
			if t != nil {
				t.Stop()
			}
			continue
		case <-timerCh:
			w.fireExpired()
		}
	}
}

func (w *timerWheel) fireExpired() {
	now := time.Now()
	var ready []timerEntry
	w.mu.Lock()
	for len(w.heap) > 0 && !w.heap[0].when.After(now) {
		ready = append(ready, heap.Pop(&w.heap).(timerEntry))
	}
	w.mu.Unlock()

	for _, e := range ready {
		if e.token.tryFire() {
			w.sched.scheduleWake(e.handle, nil)
		}
	}
}

func (w *timerWheel) close() {
	close(w.closeCh)
}

// delayAwaitable implements spec.md §4.4's delay: always suspends, and
// registers with the Scheduler's timerWheel to be resumed no earlier than
// the requested duration from now.
type delayAwaitable struct {
	d time.Duration
}

func (delayAwaitable) Ready() bool            { return false }
func (delayAwaitable) TransferTarget() Handle { return Handle{} }
func (delayAwaitable) Resume() struct{}       { return struct{}{} }

func (a delayAwaitable) Suspend(caller Handle) SuspendDecision {
	_ = caller.task.sched.timers.add(time.Now().Add(a.d), caller)
	return SuspendAndPark
}

// Delay suspends the calling task for at least d before resuming it.
func Delay(d time.Duration) {
	await[struct{}](delayAwaitable{d: d})
}
