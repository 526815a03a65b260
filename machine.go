package coroutine

import "time"

// Machine (M) is the goroutine that drives one Processor, per spec.md
// §3/§4.8. Unlike the source material's OS-thread M, a Go goroutine is
// cheap and the Go runtime itself grows the real OS-thread pool under a
// blocking syscall (exactly the transient-extra-M behavior spec.md asks
// for during Reactor Polling) — so Machine needs no manual thread
// management of its own; it is simply the dedicated loop bound to one
// Processor for the Scheduler's lifetime.
type Machine struct {
	id    int
	sched *Scheduler
	proc  *Processor
}

func newMachine(id int, sched *Scheduler, p *Processor) *Machine {
	return &Machine{id: id, sched: sched, proc: p}
}

// run is the Machine's main loop: fetch a runnable Handle, drive it to
// completion or its next suspension point, repeat, until the Processor's
// getNextTask reports shutdown.
func (m *Machine) run() {
	for {
		h, ok := m.proc.getNextTask()
		if !ok {
			m.proc.state.Store(stateTerminated)
			return
		}
		m.proc.state.Store(stateRunning)
		m.drive(h)
	}
}

// drive resumes h and then loops on symmetric transfers (spec.md §4.1's
// SuspendAndTransfer) without consulting the Scheduler again, exactly the
// way a C++ coroutine's symmetric transfer avoids a trampoline back
// through the scheduler for a tail-await.
func (m *Machine) drive(h Handle) {
	for {
		start := time.Now()
		if !h.resumeOn(m.proc) {
			// Lost a race for this suspension point (see Handle.resumeOn):
			// nobody woke up, so there is nothing to drive. Fall back to
			// the Processor for the next unit of work.
			return
		}
		report := <-h.task.yielded
		m.sched.metrics.observeTask(time.Since(start).Seconds())
		if report.completed {
			if report.panicVal != nil && !report.hadJoiner {
				// No one is joining this task: the panic must still
				// surface rather than vanish, so it crashes the
				// process the way an unrecovered goroutine panic
				// normally would.
				panic(report.panicVal)
			}
			return
		}
		if !report.transferTo.IsZero() {
			h = report.transferTo
			continue
		}
		return
	}
}
