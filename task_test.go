package coroutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnAndJoinReturnsResult(t *testing.T) {
	sched, err := New(WithProcessors(2))
	require.NoError(t, err)

	done := make(chan struct{})
	var got int

	Spawn(sched, func() struct{} {
		child := Spawn(sched, func() int { return 21 * 2 })
		got = child.Join()
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.Equal(t, 42, got)
}

func TestTaskDoneReflectsCompletionWithoutBlocking(t *testing.T) {
	sched, err := New(WithProcessors(2))
	require.NoError(t, err)

	done := make(chan struct{})
	var wasDoneBeforeJoin bool

	Spawn(sched, func() struct{} {
		child := Spawn(sched, func() struct{} { return struct{}{} })
		for !child.Done() {
			Yield()
		}
		wasDoneBeforeJoin = child.Done()
		child.Join()
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.True(t, wasDoneBeforeJoin)
}

func TestJoinOnAlreadyCompletedTaskDoesNotBlock(t *testing.T) {
	sched, err := New(WithProcessors(2))
	require.NoError(t, err)

	done := make(chan struct{})
	var got string

	Spawn(sched, func() struct{} {
		child := Spawn(sched, func() string { return "ready" })
		for !child.Done() {
			Yield()
		}
		got = child.Join() // must not suspend: child.done is already closed
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.Equal(t, "ready", got)
}

func TestJoinRePanicsInTheJoiningTask(t *testing.T) {
	sched, err := New(WithProcessors(2))
	require.NoError(t, err)

	done := make(chan struct{})
	var recovered any

	Spawn(sched, func() struct{} {
		child := Spawn(sched, func() struct{} { panic("boom") })

		func() {
			defer func() { recovered = recover() }()
			child.Join()
		}()

		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	require.NotNil(t, recovered)
	pe, ok := recovered.(*PanicError)
	require.True(t, ok)
	assert.Equal(t, "boom", pe.Value)
}

func TestJoiningTwiceOnTheSameTaskPanics(t *testing.T) {
	sched, err := New(WithProcessors(1))
	require.NoError(t, err)

	done := make(chan struct{})
	var secondJoinPanicked bool

	Spawn(sched, func() struct{} {
		child := Spawn(sched, func() struct{} { return struct{}{} })

		first := Spawn(sched, func() struct{} {
			child.Join()
			return struct{}{}
		})
		// Give the first joiner a chance to register before the second
		// one races it for the single joiner slot.
		Yield()
		Yield()

		func() {
			defer func() {
				if recover() != nil {
					secondJoinPanicked = true
				}
			}()
			child.Join()
		}()

		first.Join()
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.True(t, secondJoinPanicked, "a second concurrent Join on the same Task must panic")
}

func TestYieldGivesOtherTasksAChanceToRun(t *testing.T) {
	sched, err := New(WithProcessors(1))
	require.NoError(t, err)

	done := make(chan struct{})
	var order []int

	Spawn(sched, func() struct{} {
		Spawn(sched, func() struct{} {
			order = append(order, 1)
			return struct{}{}
		})
		order = append(order, 0)
		Yield()
		order = append(order, 2)
		close(done)
		return struct{}{}
	})

	go sched.Run()
	waitOrFail(t, done, 2*time.Second)
	require.NoError(t, sched.Shutdown(context.Background()))

	assert.Equal(t, []int{0, 1, 2}, order)
}
