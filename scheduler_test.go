package coroutine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerPingPong(t *testing.T) {
	sched, err := New(WithProcessors(2))
	require.NoError(t, err)

	a := NewChannel[int](0)
	b := NewChannel[int](0)
	done := make(chan struct{})

	Spawn(sched, func() struct{} {
		ta := Spawn(sched, func() struct{} {
			for i := 0; i < 1000; i++ {
				a.Send(1)
				b.Recv()
			}
			return struct{}{}
		})
		tb := Spawn(sched, func() struct{} {
			for i := 0; i < 1000; i++ {
				a.Recv()
				b.Send(2)
			}
			return struct{}{}
		})
		ta.Join()
		tb.Join()
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 10*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))
}

func TestSchedulerWorkStealingFanout(t *testing.T) {
	sched, err := New(WithProcessors(4))
	require.NoError(t, err)

	const n = 256
	var p0Count atomic.Int64
	var completed atomic.Int64
	done := make(chan struct{})

	Spawn(sched, func() struct{} {
		for i := 0; i < n; i++ {
			Spawn(sched, func() struct{} {
				if cur := currentTask(); cur != nil && cur.proc != nil && cur.proc.id == 0 {
					p0Count.Add(1)
				}
				completed.Add(1)
				return struct{}{}
			})
		}
		for completed.Load() < n {
			Yield()
		}
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.LessOrEqual(t, p0Count.Load(), int64(n/4),
		"expected stealing to spread work across Ps, not concentrate it on P0")
}

func TestSchedulerReactorTimeout(t *testing.T) {
	sched, err := New(WithProcessors(1))
	require.NoError(t, err)

	done := make(chan struct{})
	var elapsed time.Duration
	var idBefore, idAfter uint64

	Spawn(sched, func() struct{} {
		idBefore = currentTask().id
		start := time.Now()
		Delay(100 * time.Millisecond)
		elapsed = time.Since(start)
		idAfter = currentTask().id
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.LessOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Equal(t, idBefore, idAfter)
}

func TestSchedulerKickFromPolling(t *testing.T) {
	sched, err := New(WithProcessors(1))
	require.NoError(t, err)

	go sched.Run()
	time.Sleep(30 * time.Millisecond) // let the sole P settle into Polling/idle

	done := make(chan struct{})
	start := time.Now()
	Spawn(sched, func() struct{} {
		close(done)
		return struct{}{}
	})

	waitOrFail(t, done, time.Second)
	elapsed := time.Since(start)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.Less(t, elapsed, 100*time.Millisecond,
		"a task spawned from outside any task should be picked up quickly by an idle/polling P")
}

func TestSchedulerClosedChannelDrain(t *testing.T) {
	sched, err := New(WithProcessors(2))
	require.NoError(t, err)

	ch := NewChannel[int](4)
	done := make(chan struct{})
	var senderStates [2]ChannelState
	var recvStates [5]ChannelState
	var recvValues [4]int

	Spawn(sched, func() struct{} {
		for i := 1; i <= 4; i++ {
			assert.Equal(t, Ok, ch.Send(i))
		}

		var senders [2]Task[struct{}]
		for i := range senders {
			idx := i
			senders[i] = Spawn(sched, func() struct{} {
				senderStates[idx] = ch.Send(100 + idx)
				return struct{}{}
			})
		}

		for {
			ch.mu.Lock()
			n := len(ch.senders)
			ch.mu.Unlock()
			if n == 2 {
				break
			}
			Yield()
		}

		ch.Close()
		for _, s := range senders {
			s.Join()
		}

		for i := 0; i < 4; i++ {
			v, state := ch.Recv()
			recvValues[i] = v
			recvStates[i] = state
		}
		_, recvStates[4] = ch.Recv()

		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	for i, s := range recvStates[:4] {
		assert.Equalf(t, Ok, s, "recv %d", i)
	}
	assert.Equal(t, Closed, recvStates[4])
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, recvValues)
	for _, s := range senderStates {
		assert.Equal(t, Closed, s)
	}
}

func TestSchedulerReentrantRunRejected(t *testing.T) {
	sched, err := New(WithProcessors(1))
	require.NoError(t, err)

	done := make(chan struct{})
	var reentrantErr error

	Spawn(sched, func() struct{} {
		reentrantErr = sched.Run()
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.ErrorIs(t, reentrantErr, ErrReentrantRun)
}

func TestSchedulerMetricsTracksTaskLatency(t *testing.T) {
	sched, err := New(WithProcessors(2))
	require.NoError(t, err)

	done := make(chan struct{})
	Spawn(sched, func() struct{} {
		for i := 0; i < 50; i++ {
			Yield()
		}
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	snap := sched.Metrics()
	assert.Greater(t, snap.TaskLatency.Count, 0)
}
