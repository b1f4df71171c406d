package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLockerExclusive(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, "rollover", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"rollover"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"rollover"))

	_, err = NewRedisLocker(client).TryAcquire(ctx, "rollover", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists(keyPrefix+"rollover"))
	require.NoError(t, lease.Release(ctx))

	again, err := locker.TryAcquire(ctx, "rollover", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLeaseRefreshExtendsTTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, "rollover", time.Minute)
	require.NoError(t, err)

	mr.FastForward(50 * time.Second)
	require.NoError(t, lease.Refresh(ctx, 15*time.Minute))
	assert.Equal(t, 15*time.Minute, mr.TTL(keyPrefix+"rollover"))

	mr.FastForward(10 * time.Minute)
	_, err = locker.TryAcquire(ctx, "rollover", time.Minute)
	assert.ErrorIs(t, err, ErrHeld)
	require.NoError(t, lease.Release(ctx))
}

func TestRedisLeaseLostAfterExpiry(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	stale, err := locker.TryAcquire(ctx, "rollover", time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, stale.Refresh(ctx, time.Minute), ErrLost)

	fresh, err := locker.TryAcquire(ctx, "rollover", time.Minute)
	require.NoError(t, err)

	// the stale holder can neither extend nor drop the fresh lease
	assert.ErrorIs(t, stale.Refresh(ctx, time.Minute), ErrLost)
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists(keyPrefix+"rollover"))

	require.NoError(t, fresh.Release(ctx))
	assert.False(t, mr.Exists(keyPrefix+"rollover"))
}

func TestRedisLockerReportsConnectionErrors(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	_, err = NewRedisLocker(client).TryAcquire(context.Background(), "rollover", time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHeld)
}
