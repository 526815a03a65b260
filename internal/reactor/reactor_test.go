//go:build linux || darwin

package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReactorRegisterAndPoll(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	token := "read-token"
	require.NoError(t, r.Register(int(pr.Fd()), Read, token))

	_, err = pw.Write([]byte("x"))
	require.NoError(t, err)

	completions, err := r.Poll(1000)
	require.NoError(t, err)
	require.Len(t, completions, 1)
	require.Equal(t, token, completions[0].Data)
	require.True(t, completions[0].Events&Read != 0)

	require.NoError(t, r.Unregister(int(pr.Fd())))
}

func TestReactorDoubleRegisterFails(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	pr, pw, err := os.Pipe()
	require.NoError(t, err)
	defer pr.Close()
	defer pw.Close()

	require.NoError(t, r.Register(int(pr.Fd()), Read, "a"))
	require.ErrorIs(t, r.Register(int(pr.Fd()), Read, "b"), ErrAlreadyRegistered)
}

func TestReactorWakeInterruptsPoll(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	done := make(chan struct{})
	start := time.Now()
	go func() {
		_, _ = r.Poll(-1)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Wake())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wake did not interrupt a blocking Poll")
	}
	require.Less(t, time.Since(start), time.Second)
}

func TestReactorUnregisteredFdErrors(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	require.ErrorIs(t, r.Unregister(999999), ErrNotRegistered)
	require.ErrorIs(t, r.Modify(999999, Read), ErrNotRegistered)
}
