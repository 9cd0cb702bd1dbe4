//go:build !windows

package session

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockedPaths(t *testing.T) Paths {
	t.Helper()
	s := newTestStore(t)
	p, err := s.Resolve("alpha")
	require.NoError(t, err)
	_, err = s.EnsureLayout(p)
	require.NoError(t, err)
	return p
}

func TestTryAcquireContention(t *testing.T) {
	p := lockedPaths(t)

	first, err := TryAcquire(p)
	require.NoError(t, err)

	// flock locks belong to the open file description, so a second open in
	// the same process contends like another process would.
	second, err := TryAcquire(p)
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.Nil(t, second)

	require.NoError(t, first.Close())

	third, err := TryAcquire(p)
	require.NoError(t, err)
	require.NoError(t, third.Close())
}

func TestLockCloseTwice(t *testing.T) {
	p := lockedPaths(t)
	h, err := TryAcquire(p)
	require.NoError(t, err)
	require.NoError(t, h.Close())
	assert.NoError(t, h.Close())

	var nilHandle *LockHandle
	assert.NoError(t, nilHandle.Close())
}

func TestLockNotInheritedByChildren(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	p := lockedPaths(t)

	h, err := TryAcquire(p)
	require.NoError(t, err)

	child := exec.Command(sleep, "30")
	require.NoError(t, child.Start())
	t.Cleanup(func() {
		_ = child.Process.Kill()
		_ = child.Wait()
	})

	_, err = TryAcquire(p)
	assert.ErrorIs(t, err, ErrSessionBusy)
	require.NoError(t, h.Close())

	// The child is still running but never saw the descriptor.
	after, err := TryAcquire(p)
	require.NoError(t, err, "a child process must not keep the lock")
	require.NoError(t, after.Close())
}
