package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb, ttl), mr
}

func TestWithLock_RunsAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)

	ran := false
	err := locker.WithLock(context.Background(), "booking:user:1", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:booking:user:1"))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:booking:user:1"))
}

func TestWithLock_ContendedKey(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)
	require.NoError(t, mr.Set("lock:booking:user:1", "someone-else"))

	err := locker.WithLock(context.Background(), "booking:user:1", func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})

	assert.ErrorIs(t, err, ErrLockNotAcquired)
	got, _ := mr.Get("lock:booking:user:1")
	assert.Equal(t, "someone-else", got)
}

func TestWithLock_PropagatesErrorAndReleases(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:k"))
}

func TestWithLock_DoesNotReleaseForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t, time.Minute)

	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
		// simulate expiry and takeover by another holder
		return mr.Set("lock:k", "other-holder")
	})

	require.NoError(t, err)
	got, _ := mr.Get("lock:k")
	assert.Equal(t, "other-holder", got)
}

func TestWithLock_ContextBoundedByTTL(t *testing.T) {
	locker, _ := newTestLocker(t, 50*time.Millisecond)

	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		return nil
	})
	require.NoError(t, err)
}
