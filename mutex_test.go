package coroutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexUnlockOfUnlockedPanics(t *testing.T) {
	var m Mutex
	assert.Panics(t, func() { m.Unlock() })
}

func TestMutexTryLock(t *testing.T) {
	var m Mutex
	assert.True(t, m.TryLock())
	assert.False(t, m.TryLock())
	m.Unlock()
	assert.True(t, m.TryLock())
}

func TestMutexContentionPreservesExclusion(t *testing.T) {
	sched, err := New(WithProcessors(4))
	require.NoError(t, err)

	const n = 1000
	var m Mutex
	counter := 0
	signal := NewChannel[struct{}](0)
	done := make(chan struct{})
	var recvState ChannelState

	Spawn(sched, func() struct{} {
		var workers []Task[struct{}]
		for i := 0; i < n; i++ {
			workers = append(workers, Spawn(sched, func() struct{} {
				m.Lock()
				counter++
				m.Unlock()
				return struct{}{}
			}))
		}

		signaler := Spawn(sched, func() struct{} {
			for {
				m.Lock()
				c := counter
				m.Unlock()
				if c == n {
					break
				}
				Yield()
			}
			signal.Send(struct{}{})
			return struct{}{}
		})

		for _, w := range workers {
			w.Join()
		}
		_, recvState = signal.Recv()
		signaler.Join()
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 10*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.Equal(t, n, counter)
	assert.Equal(t, Ok, recvState)
}

func TestMutexGrantsInArrivalOrder(t *testing.T) {
	sched, err := New(WithProcessors(1))
	require.NoError(t, err)

	var m Mutex
	var order []int
	done := make(chan struct{})

	Spawn(sched, func() struct{} {
		m.Lock()

		const n = 5
		var waiters []Task[struct{}]
		for i := 0; i < n; i++ {
			idx := i
			waiters = append(waiters, Spawn(sched, func() struct{} {
				m.Lock()
				order = append(order, idx)
				m.Unlock()
				return struct{}{}
			}))
			// Let each spawned waiter reach Lock() and park before
			// spawning the next, so the queue order is deterministic.
			Yield()
		}

		m.Unlock()
		for _, w := range waiters {
			w.Join()
		}
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	require.Len(t, order, 5)
	for i, v := range order {
		assert.Equal(t, i, v, "Mutex did not grant in strict FIFO order")
	}
}
