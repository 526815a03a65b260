// Package coroutine implements a user-space M:N cooperative task runtime:
// stackless-style tasks multiplexed over a fixed pool of OS threads, a
// kernel-assisted async I/O reactor, and a small set of cooperative sync
// primitives.
//
// # Architecture
//
// A [Scheduler] owns a fixed set of [Processor]s (P), each driven by one
// [Machine] (M) goroutine for the Scheduler's lifetime. [Task] values are
// spawned with [Spawn] and run on a dedicated goroutine parked on a private
// [Handle] at every suspension point — the nearest Go equivalent of a
// compiler-generated coroutine frame, since Go itself exposes no such hook.
//
// Every blocking operation — [Channel] send/recv, [Mutex].Lock,
// [Task].Join, [Delay], reactor I/O via [Conn]/[Listener] — is built on the
// same suspend/resume protocol: an awaitable captures the caller's Handle,
// parks it in its own waiter list, and hands the Handle back to the
// Scheduler once its event fires.
//
// # Scheduling
//
// A Processor's search order on each iteration is: its run_next slot, its
// local work-stealing deque, the Scheduler's global queue, a randomized
// steal attempt against a sibling Processor, a bounded Reactor poll, and
// finally parking. Spawning from inside a running task places the new
// Task on the spawning Processor's run_next slot; spawning from outside
// any task (including from [BridgeChannel]) goes to the global queue.
//
// # Platform support
//
// The Reactor ([internal/reactor]) uses epoll on Linux and kqueue on
// Darwin. Other platforms fall back to a poller that supports Delay/Yield/
// Channel/Mutex but rejects fd registration — see that package's doc
// comment.
//
// # Usage
//
//	sched, err := coroutine.New(coroutine.WithProcessors(4))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	coroutine.Spawn(sched, func() struct{} {
//	    fmt.Println("hello from a task")
//	    return struct{}{}
//	})
//
//	go func() {
//	    time.Sleep(time.Second)
//	    sched.Shutdown(context.Background())
//	}()
//
//	if err := sched.Run(); err != nil {
//	    log.Fatal(err)
//	}
package coroutine
