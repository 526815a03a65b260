package coroutine

import "sync"

// RecvResult is the outcome of a Channel Recv: the received value (zero if
// State is Closed) and the ChannelState describing whether it is genuine.
type RecvResult[T any] struct {
	Value T
	State ChannelState
}

// Channel is a bounded or rendezvous (capacity 0) FIFO message queue, per
// spec.md §4.5. Every field is protected by mu; the invariant that a waiting
// sender and a waiting receiver never coexist is maintained by always
// pairing a new operation against the opposite queue before falling back to
// the buffer or parking.
type Channel[T any] struct {
	mu       sync.Mutex
	capacity int

	buf       []T
	senders   []*sendAwaitable[T]
	receivers []*recvAwaitable[T]
	closed    bool
}

// NewChannel constructs a Channel with the given capacity. Capacity 0 gives
// rendezvous semantics: Send only ever completes by handing off directly to
// a waiting Recv, never by buffering.
func NewChannel[T any](capacity int) *Channel[T] {
	if capacity < 0 {
		panic(&ProgrammerError{Op: "NewChannel", Msg: "capacity must be >= 0"})
	}
	return &Channel[T]{capacity: capacity}
}

// scheduleHandle hands a parked Handle back to its scheduler. Used whenever
// a Channel operation directly completes a counterpart that was already
// parked (spec.md's "spawn <side>'s Handle" step).
func scheduleHandle(h Handle) {
	if h.IsZero() {
		return
	}
	h.task.sched.schedule(h, nil)
}

// sendAwaitable implements SuspensionAwaitable[ChannelState] for Channel.Send.
// All of the decision logic from spec.md §4.5's send() pseudocode lives in
// Suspend, under ch.mu; Ready is always false so every Send goes through one
// atomic decision point rather than racing a separate fast-path check
// against Suspend.
type sendAwaitable[T any] struct {
	ch     *Channel[T]
	value  T
	caller Handle
	state  ChannelState
}

func (a *sendAwaitable[T]) Ready() bool            { return false }
func (a *sendAwaitable[T]) TransferTarget() Handle { return Handle{} }
func (a *sendAwaitable[T]) Resume() ChannelState   { return a.state }

func (a *sendAwaitable[T]) Suspend(caller Handle) SuspendDecision {
	ch := a.ch
	ch.mu.Lock()

	if ch.closed {
		ch.mu.Unlock()
		a.state = Closed
		return ResumeCaller
	}

	if len(ch.receivers) > 0 {
		rw := ch.receivers[0]
		ch.receivers = ch.receivers[1:]
		rw.result = RecvResult[T]{Value: a.value, State: Ok}
		ch.mu.Unlock()
		a.state = Ok
		scheduleHandle(rw.caller)
		return ResumeCaller
	}

	if len(ch.buf) < ch.capacity {
		ch.buf = append(ch.buf, a.value)
		ch.mu.Unlock()
		a.state = Ok
		return ResumeCaller
	}

	a.caller = caller
	ch.senders = append(ch.senders, a)
	ch.mu.Unlock()
	return SuspendAndPark
}

// cancel removes a from its channel's sender queue if it is still parked
// there, for use by select.go. It returns true if found-and-removed (the
// send had not yet paired with a receiver) and false if a had already
// fired.
func (a *sendAwaitable[T]) cancel() bool {
	ch := a.ch
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i, s := range ch.senders {
		if s == a {
			ch.senders = append(ch.senders[:i], ch.senders[i+1:]...)
			return true
		}
	}
	return false
}

// recvAwaitable implements SuspensionAwaitable[RecvResult[T]] for
// Channel.Recv, mirroring sendAwaitable's structure.
type recvAwaitable[T any] struct {
	ch     *Channel[T]
	caller Handle
	result RecvResult[T]
}

func (a *recvAwaitable[T]) Ready() bool              { return false }
func (a *recvAwaitable[T]) TransferTarget() Handle    { return Handle{} }
func (a *recvAwaitable[T]) Resume() RecvResult[T]     { return a.result }

func (a *recvAwaitable[T]) Suspend(caller Handle) SuspendDecision {
	ch := a.ch
	ch.mu.Lock()

	if len(ch.buf) > 0 {
		v := ch.buf[0]
		ch.buf = ch.buf[1:]
		if len(ch.senders) > 0 {
			sw := ch.senders[0]
			ch.senders = ch.senders[1:]
			ch.buf = append(ch.buf, sw.value) // preserves FIFO, per spec.md §4.5
			ch.mu.Unlock()
			a.result = RecvResult[T]{Value: v, State: Ok}
			sw.state = Ok
			scheduleHandle(sw.caller)
			return ResumeCaller
		}
		ch.mu.Unlock()
		a.result = RecvResult[T]{Value: v, State: Ok}
		return ResumeCaller
	}

	if len(ch.senders) > 0 {
		// Only reachable when capacity is 0: buf is always empty, so a
		// parked sender can only mean rendezvous.
		sw := ch.senders[0]
		ch.senders = ch.senders[1:]
		ch.mu.Unlock()
		a.result = RecvResult[T]{Value: sw.value, State: Ok}
		sw.state = Ok
		scheduleHandle(sw.caller)
		return ResumeCaller
	}

	if ch.closed {
		ch.mu.Unlock()
		var zero T
		a.result = RecvResult[T]{Value: zero, State: Closed}
		return ResumeCaller
	}

	a.caller = caller
	ch.receivers = append(ch.receivers, a)
	ch.mu.Unlock()
	return SuspendAndPark
}

// cancel removes a from its channel's receiver queue if it is still parked
// there, for use by select.go. It returns true if found-and-removed and
// false if a had already fired.
func (a *recvAwaitable[T]) cancel() bool {
	ch := a.ch
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i, r := range ch.receivers {
		if r == a {
			ch.receivers = append(ch.receivers[:i], ch.receivers[i+1:]...)
			return true
		}
	}
	return false
}

// Send delivers value to the channel, blocking the calling task until a
// receiver takes it (rendezvous) or buffer space frees up (bounded), per
// spec.md §4.5. Returns Closed without blocking if the channel is already
// closed.
func (ch *Channel[T]) Send(value T) ChannelState {
	return await[ChannelState](&sendAwaitable[T]{ch: ch, value: value})
}

// Recv removes and returns the next value, blocking until one is available
// or the channel closes.
func (ch *Channel[T]) Recv() (T, ChannelState) {
	r := await[RecvResult[T]](&recvAwaitable[T]{ch: ch})
	return r.Value, r.State
}

// Close marks the channel closed and drains every parked sender and
// receiver with a Closed result, per spec.md §4.5. Closing an
// already-closed channel is a no-op.
func (ch *Channel[T]) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	senders := ch.senders
	receivers := ch.receivers
	ch.senders = nil
	ch.receivers = nil
	ch.mu.Unlock()

	for _, sw := range senders {
		sw.state = Closed
		scheduleHandle(sw.caller)
	}
	var zero T
	for _, rw := range receivers {
		rw.result = RecvResult[T]{Value: zero, State: Closed}
		scheduleHandle(rw.caller)
	}
}
