package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributedLock_TryLockAndUnlock(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	first := NewDistributedLock(rdb, "market-sync", time.Minute, false)
	second := NewDistributedLock(rdb, "market-sync", time.Minute, false)

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// 非持有者释放无效
	require.NoError(t, second.Unlock(ctx))
	held, err := first.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, first.Unlock(ctx))
	held, err = first.IsHeld(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistributedLock_Expires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	lock := NewDistributedLock(rdb, "whale-sync", time.Second, false)
	ok, err := lock.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	held, err := lock.IsHeld(ctx)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestDistributedLock_Renew(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	lock := NewDistributedLock(rdb, "cleanup", 3*time.Second, false)
	ok, err := lock.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	require.NoError(t, lock.renew(ctx))
	mr.FastForward(2 * time.Second)

	held, err := lock.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	mr.FastForward(5 * time.Second)
	assert.Error(t, lock.renew(ctx))
}

func TestLockManager(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	m := NewLockManager(rdb)

	lock := m.NewLock("leaderboard-sync", time.Minute, false)
	_, err := lock.TryLock(ctx)
	require.NoError(t, err)

	locked, err := m.IsLocked(ctx, "leaderboard-sync")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, m.ForceUnlock(ctx, "leaderboard-sync"))
	locked, err = m.IsLocked(ctx, "leaderboard-sync")
	require.NoError(t, err)
	assert.False(t, locked)
}
