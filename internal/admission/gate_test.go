package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateAcquireReleaseRoundTrip(t *testing.T) {
	g := New(Config{Limit: 1, QueueSize: 1, QueueTimeout: time.Second})

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, g.InFlight())

	release()
	assert.Equal(t, 0, g.InFlight())
}

func TestGateAcquireBlocksUntilSlotFree(t *testing.T) {
	g := New(Config{Limit: 1, QueueSize: 1, QueueTimeout: time.Second})

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		release2, err := g.Acquire(context.Background())
		require.NoError(t, err)
		release2()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestGateOverloadWhenQueueFull(t *testing.T) {
	g := New(Config{Limit: 1, QueueSize: 0, QueueTimeout: 10 * time.Millisecond})

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	_, err = g.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrOverload)
}

func TestGateReleaseIsIdempotent(t *testing.T) {
	g := New(Config{Limit: 1, QueueSize: 1, QueueTimeout: time.Second})

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	release()
	release()
	assert.Equal(t, 0, g.InFlight())
}

func TestGateSnapshot(t *testing.T) {
	g := New(Config{Limit: 5, QueueSize: 10, QueueTimeout: time.Second})
	snap := g.Snapshot()
	assert.Equal(t, 5, snap.Limit)
	assert.Equal(t, 10, snap.QueueSize)
	assert.Equal(t, 0, snap.Queued)
}
