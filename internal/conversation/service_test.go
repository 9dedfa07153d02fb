// ABOUTME: Tests for the conversation Service
// ABOUTME: Verifies expiry boundary, append ordering, reset, and in-flight aware sweeping

package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vito-gateway/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func createTestStore(t *testing.T) *store.SQLiteStore {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestService_GetOrReset_CreatesEmpty(t *testing.T) {
	svc := New(store.NewMockStore(), nil)
	now := time.Now()

	conv, err := svc.GetOrReset(context.Background(), "alice", now)
	require.NoError(t, err)
	assert.Empty(t, conv.Turns)
	assert.True(t, conv.LastActive.Equal(now))
}

func TestService_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name      string
		idle      time.Duration
		wantTurns int
	}{
		{"exactly one hour keeps history", 3600 * time.Second, 1},
		{"one second past one hour resets", 3601 * time.Second, 0},
		{"recent keeps history", time.Minute, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
			clock := &fakeClock{t: base}
			svc := New(createTestStore(t), nil, WithClock(clock.Now))
			ctx := context.Background()

			require.NoError(t, svc.AppendTurn(ctx, "alice", store.RoleUser, "hello"))

			conv, err := svc.GetOrReset(ctx, "alice", base.Add(tt.idle))
			require.NoError(t, err)
			assert.Len(t, conv.Turns, tt.wantTurns)
		})
	}
}

func TestService_AppendOrderAndActivity(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: base}
	svc := New(store.NewMockStore(), nil, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, svc.AppendTurn(ctx, "alice", store.RoleUser, "one"))
	clock.Set(base.Add(50 * time.Minute))
	require.NoError(t, svc.AppendTurn(ctx, "alice", store.RoleAssistant, "two"))

	// 70 minutes after the first turn but only 20 after the last one.
	conv, err := svc.GetOrReset(ctx, "alice", base.Add(70*time.Minute))
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "one", conv.Turns[0].Text)
	assert.Equal(t, store.RoleAssistant, conv.Turns[1].Role)
}

func TestService_Reset(t *testing.T) {
	svc := New(store.NewMockStore(), nil)
	ctx := context.Background()

	require.NoError(t, svc.AppendTurn(ctx, "alice", store.RoleUser, "hi"))
	require.NoError(t, svc.AppendTurn(ctx, "bob", store.RoleUser, "yo"))
	require.NoError(t, svc.Reset(ctx, "alice"))

	hist, err := svc.History(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, hist)

	hist, err = svc.History(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	hist, err = svc.History(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, hist)
}

func TestService_PersistenceErrorWrapped(t *testing.T) {
	m := store.NewMockStore()
	m.FailWith = fmt.Errorf("disk full")
	svc := New(m, nil)

	err := svc.AppendTurn(context.Background(), "alice", store.RoleUser, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "appending user turn")

	_, err = svc.GetOrReset(context.Background(), "alice", time.Now())
	assert.Error(t, err)
}

func TestService_SweepSkipsInFlight(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: base}
	svc := New(createTestStore(t), nil, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, svc.AppendTurn(ctx, "idle", store.RoleUser, "a"))
	require.NoError(t, svc.AppendTurn(ctx, "busy", store.RoleUser, "b"))
	clock.Set(base.Add(90 * time.Minute))
	require.NoError(t, svc.AppendTurn(ctx, "fresh", store.RoleUser, "c"))

	later := base.Add(2 * time.Hour)
	removed, err := svc.Sweep(ctx, later, func(userID string) bool { return userID == "busy" })
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	hist, err := svc.History(ctx, "idle")
	require.NoError(t, err)
	assert.Empty(t, hist)

	hist, err = svc.History(ctx, "busy")
	require.NoError(t, err)
	assert.Len(t, hist, 1, "in-flight user must survive the sweep")

	hist, err = svc.History(ctx, "fresh")
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestService_ConcurrentAppendsDifferentUsers(t *testing.T) {
	svc := New(store.NewMockStore(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := 0; u < 8; u++ {
		wg.Add(1)
		go func(u int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", u)
			for i := 0; i < 20; i++ {
				assert.NoError(t, svc.AppendTurn(ctx, user, store.RoleUser, fmt.Sprintf("%d", i)))
			}
		}(u)
	}
	wg.Wait()

	for u := 0; u < 8; u++ {
		hist, err := svc.History(ctx, fmt.Sprintf("user-%d", u))
		require.NoError(t, err)
		require.Len(t, hist, 20)
		for i, turn := range hist {
			assert.Equal(t, fmt.Sprintf("%d", i), turn.Text)
		}
	}
}

func TestService_RunSweeperStops(t *testing.T) {
	svc := New(store.NewMockStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.RunSweeper(ctx, 5*time.Millisecond, nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
