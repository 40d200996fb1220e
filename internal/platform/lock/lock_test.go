package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// locker is the contract both implementations satisfy
type locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

func setupRedisLocker(t *testing.T) *RedisLocker {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLocker(client, Options{
		Expiry:     5 * time.Second,
		Tries:      200,
		RetryDelay: 5 * time.Millisecond,
	}, nil)
}

func lockers(t *testing.T) map[string]locker {
	return map[string]locker{
		"local": NewLocalLocker(),
		"redis": setupRedisLocker(t),
	}
}

func TestWithLock(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name+"/executes function", func(t *testing.T) {
			executed := false

			err := l.WithLock(context.Background(), "lock:account:a", func(ctx context.Context) error {
				executed = true
				return nil
			})

			assert.NoError(t, err)
			assert.True(t, executed)
		})

		t.Run(name+"/returns function error unchanged", func(t *testing.T) {
			err := l.WithLock(context.Background(), "lock:account:a", func(ctx context.Context) error {
				return assert.AnError
			})

			assert.Equal(t, assert.AnError, err)
		})

		t.Run(name+"/releases lock after error", func(t *testing.T) {
			_ = l.WithLock(context.Background(), "lock:account:b", func(ctx context.Context) error {
				return assert.AnError
			})

			err := l.WithLock(context.Background(), "lock:account:b", func(ctx context.Context) error {
				return nil
			})

			assert.NoError(t, err)
		})

		t.Run(name+"/serializes concurrent holders", func(t *testing.T) {
			// Setup
			var inside, maxInside int32
			var wg sync.WaitGroup
			counter := 0

			// Act
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := l.WithLock(context.Background(), "lock:account:c", func(ctx context.Context) error {
						now := atomic.AddInt32(&inside, 1)
						for {
							seen := atomic.LoadInt32(&maxInside)
							if now <= seen || atomic.CompareAndSwapInt32(&maxInside, seen, now) {
								break
							}
						}
						counter++
						time.Sleep(2 * time.Millisecond)
						atomic.AddInt32(&inside, -1)
						return nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			// Assert
			assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
			assert.Equal(t, 10, counter)
		})
	}
}

func TestLocalLocker(t *testing.T) {
	t.Run("different keys do not block each other", func(t *testing.T) {
		l := NewLocalLocker()
		release := make(chan struct{})
		started := make(chan struct{})

		go func() {
			_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		err := l.WithLock(context.Background(), "b", func(ctx context.Context) error { return nil })
		close(release)

		assert.NoError(t, err)
	})

	t.Run("waiting stops when context is cancelled", func(t *testing.T) {
		// Setup
		l := NewLocalLocker()
		release := make(chan struct{})
		started := make(chan struct{})
		go func() {
			_ = l.WithLock(context.Background(), "a", func(ctx context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		// Act
		err := l.WithLock(ctx, "a", func(ctx context.Context) error { return nil })
		close(release)

		// Assert
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("slots are dropped when unused", func(t *testing.T) {
		l := NewLocalLocker()

		require.NoError(t, l.WithLock(context.Background(), "a", func(ctx context.Context) error { return nil }))

		assert.Empty(t, l.slots)
	})
}

func TestRedisLocker(t *testing.T) {
	t.Run("held lock makes a single-try acquirer fail", func(t *testing.T) {
		// Setup
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		holder := NewRedisLocker(client, Options{Expiry: 5 * time.Second}, nil)
		impatient := NewRedisLocker(client, Options{Expiry: 5 * time.Second, Tries: 1}, nil)
		release := make(chan struct{})
		started := make(chan struct{})
		go func() {
			_ = holder.WithLock(context.Background(), "lock:account:x", func(ctx context.Context) error {
				close(started)
				<-release
				return nil
			})
		}()
		<-started

		// Act
		executed := false
		err := impatient.WithLock(context.Background(), "lock:account:x", func(ctx context.Context) error {
			executed = true
			return nil
		})
		close(release)

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lock:account:x")
		assert.False(t, executed)
	})
}

func TestRedisLocker_Lease(t *testing.T) {
	const key = "lock:account:lease"

	t.Run("extends the lease while the holder runs", func(t *testing.T) {
		// Setup
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		l := NewRedisLocker(client, Options{Expiry: 400 * time.Millisecond}, nil)
		stillHeld := true

		// Act
		err := l.WithLock(context.Background(), key, func(ctx context.Context) error {
			for i := 0; i < 3; i++ {
				mr.FastForward(300 * time.Millisecond)
				time.Sleep(300 * time.Millisecond)
				stillHeld = stillHeld && mr.Exists(key)
			}
			return ctx.Err()
		})

		// Assert
		require.NoError(t, err)
		assert.True(t, stillHeld)
		assert.False(t, mr.Exists(key))
	})

	t.Run("an expired lease cancels the holder", func(t *testing.T) {
		// Setup
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		l := NewRedisLocker(client, Options{Expiry: 400 * time.Millisecond}, nil)
		var cause error

		// Act
		err := l.WithLock(context.Background(), key, func(ctx context.Context) error {
			mr.FastForward(time.Second)
			select {
			case <-ctx.Done():
				cause = context.Cause(ctx)
			case <-time.After(2 * time.Second):
			}
			return nil
		})

		// Assert
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLockLost)
		assert.ErrorIs(t, cause, ErrLockLost)
	})

	t.Run("the holder's own error wins", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()
		l := NewRedisLocker(client, Options{Expiry: 400 * time.Millisecond}, nil)

		err := l.WithLock(context.Background(), key, func(ctx context.Context) error {
			mr.FastForward(time.Second)
			<-ctx.Done()
			return assert.AnError
		})

		assert.Equal(t, assert.AnError, err)
	})
}
