// ABOUTME: Tests for the admission gate
// ABOUTME: Covers equal/higher rank blocking, priority bypass, queued notification, and cancellation

package admission

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vito-gateway/internal/priority"
)

func TestGate_AdmitsImmediatelyWhenIdle(t *testing.T) {
	g := NewGate(0, nil)

	var queued atomic.Bool
	release, err := g.Acquire(context.Background(), "alice", priority.Standard, func() { queued.Store(true) })
	require.NoError(t, err)
	defer release()

	assert.False(t, queued.Load())
	require.Len(t, g.Holders(), 1)
	assert.Equal(t, "alice", g.Holders()[0].UserID)
}

func TestGate_EqualRankWaits(t *testing.T) {
	g := NewGate(0, nil)

	releaseA, err := g.Acquire(context.Background(), "alice", priority.Standard, nil)
	require.NoError(t, err)

	queued := make(chan struct{})
	admitted := make(chan struct{})
	go func() {
		release, err := g.Acquire(context.Background(), "bob", priority.Standard, func() { close(queued) })
		if err == nil {
			close(admitted)
			release()
		}
	}()

	select {
	case <-queued:
	case <-time.After(time.Second):
		t.Fatal("bob was not queued")
	}
	assert.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, 5*time.Millisecond)

	select {
	case <-admitted:
		t.Fatal("bob admitted while alice holds the gate")
	case <-time.After(30 * time.Millisecond):
	}

	releaseA()

	select {
	case <-admitted:
	case <-time.After(time.Second):
		t.Fatal("bob not admitted after release")
	}
	assert.Equal(t, 0, g.Waiting())
}

func TestGate_HigherRankBypasses(t *testing.T) {
	g := NewGate(0, nil)

	releaseU, err := g.Acquire(context.Background(), "user", priority.Standard, nil)
	require.NoError(t, err)
	defer releaseU()

	var queued atomic.Bool
	releaseA, err := g.Acquire(context.Background(), "admin", priority.Admin, func() { queued.Store(true) })
	require.NoError(t, err)
	defer releaseA()

	assert.False(t, queued.Load(), "admin must not wait behind a standard user")
	holders := g.Holders()
	require.Len(t, holders, 2)
	assert.Equal(t, "admin", holders[0].UserID)
}

func TestGate_LowerRankWaitsForHigher(t *testing.T) {
	g := NewGate(0, nil)

	releaseC, err := g.Acquire(context.Background(), "creator", priority.Creator, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx, "admin", priority.Admin, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, g.Waiting())

	releaseC()

	releaseA, err := g.Acquire(context.Background(), "admin", priority.Admin, nil)
	require.NoError(t, err)
	releaseA()
}

func TestGate_SameUserNotBlockedBySelf(t *testing.T) {
	g := NewGate(0, nil)

	release1, err := g.Acquire(context.Background(), "alice", priority.Standard, nil)
	require.NoError(t, err)
	defer release1()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release2, err := g.Acquire(ctx, "alice", priority.Standard, nil)
	require.NoError(t, err)
	release2()
}

func TestGate_CancelWhileQueued(t *testing.T) {
	g := NewGate(0, nil)

	release, err := g.Acquire(context.Background(), "alice", priority.Admin, nil)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx, "bob", priority.Standard, cancel)
		errCh <- err
	}()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("queued acquire did not observe cancellation")
	}
	assert.Len(t, g.Holders(), 1)
}

func TestGate_RecheckInterval(t *testing.T) {
	g := NewGate(5*time.Millisecond, nil)

	release, err := g.Acquire(context.Background(), "alice", priority.Standard, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		r, err := g.Acquire(context.Background(), "bob", priority.Standard, nil)
		if err == nil {
			r()
		}
		close(done)
	}()

	assert.Eventually(t, func() bool { return g.Waiting() == 1 }, time.Second, time.Millisecond)
	release()
	release() // idempotent

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter not admitted")
	}
}
