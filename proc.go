package coroutine

// Processor (P) is an execution context, per spec.md §3/§4.7: a local run
// queue (run_next fast-path slot + WorkStealingDeque) plus a view onto the
// shared Reactor, bound to at most one Machine at a time. Ps outnumber
// nothing; spec.md fixes their count at construction (§9 Open Questions).
type Processor struct {
	id    int
	sched *Scheduler

	// runNext is the single-slot fast path: a child newly spawned from a
	// task on this Processor is placed here so it runs very soon, without
	// a deque round trip — mirrors the Go runtime's own runnext slot.
	// Resumed tasks never go here (see Scheduler.scheduleWake).
	runNext Handle
	deque   *WorkStealingDeque

	state *fastState
	// wake is sent to by the Scheduler to pull this Processor out of
	// parkOrShutdown once new work (or shutdown) is available.
	wake chan struct{}
}

func newProcessor(id int, sched *Scheduler) *Processor {
	return &Processor{
		id:    id,
		sched: sched,
		deque: NewWorkStealingDeque(),
		state: newFastState(stateAwake),
		wake:  make(chan struct{}, 1),
	}
}

// getNextTask implements spec.md §4.7's search order: run_next, then the
// local deque, then the global queue, then stealing from a sibling
// Processor, and finally a bounded Reactor poll before parking. It returns
// false only when the Scheduler is shutting down and there is truly
// nothing left to run.
func (p *Processor) getNextTask() (Handle, bool) {
	if h := p.takeRunNext(); !h.IsZero() {
		return h, true
	}
	if h, ok := p.deque.PopBottom(); ok {
		return h, true
	}
	if h, ok := p.takeFromGlobal(); ok {
		return h, true
	}

	p.state.Store(stateSpinning)
	if h, ok := p.sched.stealFrom(p); ok {
		p.state.Store(stateRunning)
		return h, true
	}

	// Nothing runnable anywhere: give the Reactor a bounded turn in case
	// a completion is already ready, then park if the Scheduler is still
	// alive and expects more work to eventually arrive.
	p.state.Store(statePolling)
	woken := p.sched.pollReactor(p)
	p.state.Store(stateRunning)
	if woken {
		return p.getNextTask()
	}

	return p.sched.parkOrShutdown(p)
}

// globalRefillBatch bounds how many Handles a Processor pulls from the
// global queue at once: one to run now, the rest onto the local deque so
// a burst on the global queue doesn't get drained one Handle per Processor
// visit (spec.md §4.9's "take a batch, not one at a time" guidance).
const globalRefillBatch = 32

// takeFromGlobal pops a batch off the Scheduler's global queue, keeping the
// first Handle for immediate execution and pushing the rest onto this
// Processor's own deque.
func (p *Processor) takeFromGlobal() (Handle, bool) {
	batch := p.sched.global.PopN(globalRefillBatch)
	if len(batch) == 0 {
		return Handle{}, false
	}
	for _, h := range batch[1:] {
		p.deque.PushBottom(h)
	}
	return batch[0], true
}

func (p *Processor) takeRunNext() Handle {
	h := p.runNext
	p.runNext = Handle{}
	return h
}

// setRunNext installs h as the fast-path slot, evicting any existing
// occupant to the back of the local deque first — the same eviction the
// Go runtime applies to its own runnext slot, so a burst of spawns from one
// task cannot starve earlier ones indefinitely.
func (p *Processor) setRunNext(h Handle) {
	if old := p.runNext; !old.IsZero() {
		p.deque.PushBottom(old)
	}
	p.runNext = h
}
