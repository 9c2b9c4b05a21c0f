package xcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDetachWithTimeout(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())

	detached, stop := DetachWithTimeout(parent, time.Minute)
	defer stop()

	cancel()

	require.Error(t, parent.Err())
	require.NoError(t, detached.Err())

	deadline, ok := detached.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestDetachWithTimeoutExpires(t *testing.T) {
	detached, stop := DetachWithTimeout(context.Background(), time.Millisecond)
	defer stop()

	select {
	case <-detached.Done():
	case <-time.After(time.Second):
		t.Fatal("detached context did not expire")
	}

	require.ErrorIs(t, detached.Err(), context.DeadlineExceeded)
}
