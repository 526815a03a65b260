package coroutine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"

	"github.com/hwj0017/coroutine/internal/reactor"
)

// Scheduler owns the fixed pool of Processors and Machines, the shared
// Reactor, and the global overflow queue, per spec.md §3/§4.9. Construct
// one with New and start it with Run, which blocks the calling goroutine
// (spec.md's "M0") until Shutdown completes.
type Scheduler struct {
	opts *schedulerOptions

	procs []*Processor
	global globalQueue
	timers *timerWheel

	reactor    *reactor.Reactor
	reactorErr error

	logger       *Logger
	metrics      *Metrics
	telemetry    *telemetry
	churnLimiter *catrate.Limiter

	mu           sync.Mutex
	idle         []*Processor
	running      bool
	shuttingDown bool

	wg sync.WaitGroup
}

// New constructs a Scheduler. It does not start any Machines; call Run for
// that.
func New(opts ...Option) (*Scheduler, error) {
	cfg := resolveOptions(opts)

	s := &Scheduler{
		opts:         cfg,
		logger:       cfg.logger,
		churnLimiter: catrate.NewLimiter(cfg.churnRates),
	}
	s.metrics = newMetrics(cfg.metrics)
	s.telemetry = newTelemetry(s.logger)
	s.timers = newTimerWheel(s)

	if !cfg.reactorOff {
		r, err := reactor.New()
		if err != nil {
			return nil, err
		}
		s.reactor = r
	}

	s.procs = make([]*Processor, cfg.processors)
	for i := range s.procs {
		s.procs[i] = newProcessor(i, s)
	}

	return s, nil
}

// Run starts one Machine per Processor and blocks until Shutdown is called
// and every Machine has drained, per spec.md §4.9. Calling Run a second
// time, or calling it reentrantly from inside a running task, is an error.
func (s *Scheduler) Run() error {
	if currentTask() != nil {
		return ErrReentrantRun
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	go s.timers.run()

	for i, p := range s.procs {
		p.state.Store(stateRunning)
		m := newMachine(i, s, p)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			m.run()
		}()
	}

	s.wg.Wait()
	return nil
}

// Shutdown requests every Processor stop and waits, up to ctx's deadline,
// for every Machine to return. Processors keep running whatever is already
// queued (run_next, local deque, global queue) and stop once they find
// nothing left to run; a task parked on a Channel, Mutex, Join, Delay or
// I/O wait at that point is never resumed.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	s.shuttingDown = true
	idle := s.idle
	s.idle = nil
	s.mu.Unlock()

	s.timers.close()
	for _, p := range idle {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
	if s.reactor != nil {
		_ = s.reactor.Wake()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if s.reactor != nil {
			_ = s.reactor.Close()
		}
		s.telemetry.close()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scheduleSpawn places a freshly spawned Handle per spec.md §4.9's
// producer-locality rule: into the spawning Processor's run_next slot
// (evicting any existing occupant to the local deque) when spawned from
// inside a running task, or onto the global queue when spawned from
// outside any task (e.g. before Run, or from an arbitrary external
// goroutine via BridgeChannel).
func (s *Scheduler) scheduleSpawn(h Handle, proc *Processor) {
	if proc != nil {
		proc.setRunNext(h)
		s.wakeOne()
		return
	}
	s.global.Push(h)
	s.wakeOne()
}

// scheduleWake places a Handle that is becoming runnable again after
// parking (Channel match, Mutex handoff, Task join, Reactor completion,
// or a timer firing). preferred, if non-nil, is pushed directly onto that
// Processor's local deque (used by Yield, to requeue the caller without
// overwriting its own run_next); otherwise the Handle goes on the global
// queue, to be picked up by whichever Processor asks first.
func (s *Scheduler) scheduleWake(h Handle, preferred *Processor) {
	if preferred != nil {
		preferred.deque.PushBottom(h)
		s.wakeOne()
		return
	}
	s.global.Push(h)
	s.wakeOne()
}

// schedule is the entry point used by components (Channel, Mutex, Task
// join) that don't need to distinguish spawn-locality from wake-locality;
// it always targets the global queue unless proc is given, matching
// scheduleWake's behavior. Kept as a thin alias so call sites read
// naturally (e.g. "hand this Handle back to the scheduler").
func (s *Scheduler) schedule(h Handle, proc *Processor) {
	s.scheduleWake(h, proc)
}

// stealFrom tries every sibling Processor, in a random starting order
// (spec.md §4.10's randomized stealing policy, avoiding the herd-on-P0
// effect a fixed scan order produces), taking a batch via StealHalf from
// the first victim with anything to give up. The first Handle of the
// batch is returned for immediate execution; the rest go onto the
// thief's own deque, per spec.md §4.10.
func (s *Scheduler) stealFrom(thief *Processor) (Handle, bool) {
	n := len(s.procs)
	if n <= 1 {
		return Handle{}, false
	}
	start := rand.Intn(n)
	start0 := time.Now()
	for i := 0; i < n; i++ {
		victim := s.procs[(start+i)%n]
		if victim == thief {
			continue
		}
		if batch, ok := victim.deque.StealHalf(); ok {
			s.metrics.observeSteal(time.Since(start0).Seconds())
			for _, h := range batch[1:] {
				thief.deque.PushBottom(h)
			}
			return batch[0], true
		}
	}
	return Handle{}, false
}

// pollReactor gives the shared Reactor one bounded turn, scheduling every
// resulting Completion's Handle, per spec.md §4.7's "poll before park"
// step. It returns true if any completion was scheduled, signalling the
// caller's getNextTask to loop and retry its search instead of parking.
func (s *Scheduler) pollReactor(p *Processor) bool {
	if s.reactor == nil {
		return false
	}
	start := time.Now()
	completions, err := s.reactor.Poll(0)
	s.metrics.observePoll(time.Since(start).Seconds())
	if err != nil {
		s.logReactorError(p, err)
		return false
	}
	for _, c := range completions {
		h, ok := c.Data.(Handle)
		if !ok || h.IsZero() {
			continue
		}
		s.scheduleWake(h, nil)
	}
	return len(completions) > 0
}

// parkOrShutdown registers p as idle and blocks until woken by new work or
// by Shutdown, per spec.md §4.9's idle/polling bitmask description
// (realized here as an explicit idle list plus a per-Processor wake
// channel rather than a bitmask, since Go gives us blocking channel
// receive for free).
func (s *Scheduler) parkOrShutdown(p *Processor) (Handle, bool) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return Handle{}, false
	}
	s.idle = append(s.idle, p)
	s.mu.Unlock()

	p.state.Store(stateIdle)
	s.logProcessorState(p, stateIdle)

	<-p.wake

	s.mu.Lock()
	down := s.shuttingDown
	s.mu.Unlock()
	if down {
		return Handle{}, false
	}
	p.state.Store(stateRunning)
	return p.getNextTask()
}

// wakeOne pops one idle Processor, if any, and wakes it. Called whenever
// new work is pushed anywhere a parked Processor might be able to pick it
// up: global queue push, run_next/local-deque push, and Reactor
// completions.
func (s *Scheduler) wakeOne() {
	s.mu.Lock()
	if len(s.idle) == 0 {
		s.mu.Unlock()
		return
	}
	p := s.idle[len(s.idle)-1]
	s.idle = s.idle[:len(s.idle)-1]
	s.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}
