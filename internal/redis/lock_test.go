package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, 5*time.Second)
}

func TestWithLockRunsCriticalSection(t *testing.T) {
	locker := newTestLocker(t)

	ran := false
	err := locker.WithLock(context.Background(), "session:abc", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestWithLockContention(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	err := locker.WithLock(ctx, "session:abc", func(ctx context.Context) error {
		// While held, a second attempt on the same name must fail fast.
		inner := locker.WithLock(ctx, "session:abc", func(ctx context.Context) error {
			t.Fatal("critical section ran without the lock")
			return nil
		})
		require.ErrorIs(t, inner, ErrLockNotAcquired)

		// A different name is independent.
		return locker.WithLock(ctx, "session:other", func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestWithLockReleasesAfterReturn(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	sentinel := errors.New("section failed")
	err := locker.WithLock(ctx, "slot:xyz", func(ctx context.Context) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	// The error propagated but the lock was still released.
	err = locker.WithLock(ctx, "slot:xyz", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
}
