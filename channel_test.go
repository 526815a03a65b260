package coroutine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannelRejectsNegativeCapacity(t *testing.T) {
	assert.Panics(t, func() { NewChannel[int](-1) })
}

func TestChannelRendezvousNeverBuffers(t *testing.T) {
	sched, err := New(WithProcessors(2))
	require.NoError(t, err)

	ch := NewChannel[int](0)
	done := make(chan struct{})
	var sendReturned atomic.Bool

	Spawn(sched, func() struct{} {
		ch.Send(42)
		sendReturned.Store(true)
		return struct{}{}
	})
	Spawn(sched, func() struct{} {
		// Give the sender a chance to have already entered Send before we
		// receive; either order is valid, but once Send returns Ok some
		// recv must already have the value (spec's rendezvous boundary).
		Yield()
		v, state := ch.Recv()
		assert.Equal(t, Ok, state)
		assert.Equal(t, 42, v)
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))
	assert.True(t, sendReturned.Load())
}

func TestChannelRoundTripPreservesMultisetAndFIFO(t *testing.T) {
	sched, err := New(WithProcessors(4))
	require.NoError(t, err)

	const n = 200
	ch := NewChannel[int](8)
	done := make(chan struct{})
	var received [n]int

	Spawn(sched, func() struct{} {
		sender := Spawn(sched, func() struct{} {
			for i := 0; i < n; i++ {
				ch.Send(i)
			}
			return struct{}{}
		})
		for i := 0; i < n; i++ {
			v, state := ch.Recv()
			assert.Equal(t, Ok, state)
			received[i] = v
		}
		sender.Join()
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 5*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	for i := 0; i < n; i++ {
		assert.Equalf(t, i, received[i], "FIFO order violated at index %d", i)
	}
}

func TestChannelCloseResumesParkedReceiver(t *testing.T) {
	sched, err := New(WithProcessors(2))
	require.NoError(t, err)

	ch := NewChannel[int](0)
	done := make(chan struct{})
	var recvState ChannelState

	recvTask := Spawn(sched, func() struct{} {
		_, state := ch.Recv()
		recvState = state
		return struct{}{}
	})

	closer := Spawn(sched, func() struct{} {
		for {
			ch.mu.Lock()
			n := len(ch.receivers)
			ch.mu.Unlock()
			if n == 1 {
				break
			}
			Yield()
		}
		ch.Close()
		return struct{}{}
	})

	Spawn(sched, func() struct{} {
		recvTask.Join()
		closer.Join()
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))
	assert.Equal(t, Closed, recvState)
}

func waitOrFail(t *testing.T, done <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for test scenario to complete")
	}
}
