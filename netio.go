package coroutine

import (
	"errors"

	"github.com/hwj0017/coroutine/internal/reactor"
)

// ErrIOUnsupported is returned by Connect/Listen/Accept on platforms where
// internal/reactor falls back to reactor_other.go's fallbackPoller, which
// accepts no fd registrations at all (see that file's doc comment).
var ErrIOUnsupported = errors.New("coroutine: fd-backed I/O is not supported on this platform")

// Conn is a non-blocking, reactor-backed socket connection: spec.md §4.3's
// connect/read/write operations realized as SuspensionAwaitable-driven
// methods instead of the source material's ring-and-user-data-pointer
// scheme (internal/reactor's Completion.Data already carries the awaiting
// Handle directly, so there is no separate submission table to manage
// here).
type Conn struct {
	fd int
	r  *reactor.Reactor
}

// Listener accepts inbound Conns, per spec.md §4.3's accept operation.
type Listener struct {
	fd int
	r  *reactor.Reactor
}

// ioAwaitable implements SuspensionAwaitable[error] for a single
// readiness wait: register fd for ev, park, and report any registration
// error inline once woken. The actual read/write syscall happens in the
// caller after waiting, exactly like Go's own runtime-integrated netpoller
// — the reactor only ever answers "are you ready", never performs I/O
// itself, since golang.org/x/sys/unix gives us no kernel-executed
// io_uring-style operations to delegate to (see DESIGN.md).
type ioAwaitable struct {
	r      *reactor.Reactor
	fd     int
	events reactor.Event
	err    error
}

func (a *ioAwaitable) Ready() bool             { return false }
func (a *ioAwaitable) TransferTarget() Handle  { return Handle{} }
func (a *ioAwaitable) Resume() error           { return a.err }

func (a *ioAwaitable) Suspend(caller Handle) SuspendDecision {
	if err := a.r.Register(a.fd, a.events, caller); err != nil {
		a.err = err
		return ResumeCaller
	}
	return SuspendAndPark
}

// waitFor suspends the calling task until fd becomes ready for ev, then
// unregisters it. A given fd can only have one outstanding wait at a time,
// whatever its event set: a second registration of the same fd fails with
// reactor.ErrAlreadyRegistered, which waitFor returns.
func waitFor(r *reactor.Reactor, fd int, ev reactor.Event) error {
	err := await[error](&ioAwaitable{r: r, fd: fd, events: ev})
	_ = r.Unregister(fd)
	return err
}
