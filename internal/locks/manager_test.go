package locks

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-engine/internal/redis"
)

func testManager(t *testing.T) *Manager {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client, err := redis.NewClient(&redis.Config{Address: s.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	manager, err := NewManager(client)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return manager
}

func TestManagerRequiresClient(t *testing.T) {
	_, err := NewManager(nil)
	assert.Error(t, err)
}

func TestManagerAcquireAndRelease(t *testing.T) {
	manager := testManager(t)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "sweep", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "sweep", lock.Key())
	assert.True(t, lock.IsHeld())

	require.NoError(t, lock.Release(ctx))
	assert.False(t, lock.IsHeld())

	// Released locks can be taken again
	again, err := manager.AcquireLock(ctx, "sweep", 30*time.Second)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestManagerContention(t *testing.T) {
	manager := testManager(t)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "sweep", 30*time.Second)
	require.NoError(t, err)
	defer lock.Release(ctx)

	_, err = manager.AcquireLock(ctx, "sweep", 30*time.Second)
	assert.Error(t, err)

	// A different key is unaffected
	other, err := manager.AcquireLock(ctx, "other", 30*time.Second)
	require.NoError(t, err)
	_ = other.Release(ctx)
}

func TestManagerSweepLock(t *testing.T) {
	manager := testManager(t)
	ctx := context.Background()

	lock, err := manager.AcquireSweepLock(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sweep", lock.Key())
	_ = lock.Release(ctx)
}

func TestManagerCloseReleasesLocks(t *testing.T) {
	manager := testManager(t)
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "sweep", 30*time.Second)
	require.NoError(t, err)

	require.NoError(t, manager.Close())
	assert.False(t, lock.IsHeld())
}
