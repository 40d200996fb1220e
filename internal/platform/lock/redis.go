package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tometh04/maxevagestion-sub002/internal/platform/logging"
)

// Options configures distributed lock behavior
type Options struct {
	// Expiry is how long the lock is held before auto-expiring
	Expiry time.Duration

	// Tries is the number of attempts to acquire the lock before giving up
	Tries int

	// RetryDelay is the delay between attempts
	RetryDelay time.Duration

	// DriftFactor accounts for clock drift between Redis nodes
	DriftFactor float64
}

// DefaultOptions returns the options used for account locks. Tries and delay
// give a contended account a few seconds to free up. The expiry bounds how long
// a crashed holder blocks the key; live holders keep extending it.
func DefaultOptions() Options {
	return Options{
		Expiry:      30 * time.Second,
		Tries:       40,
		RetryDelay:  100 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

// RedisLocker is a distributed per-key lock using the Redlock algorithm on a
// single Redis deployment
type RedisLocker struct {
	redsync *redsync.Redsync
	opts    Options
	logger  *logging.Logger
}

// NewRedisLocker creates a distributed locker on the given client
func NewRedisLocker(client redis.UniversalClient, opts Options, logger *logging.Logger) *RedisLocker {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	defaults := DefaultOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = defaults.Expiry
	}
	if opts.Tries <= 0 {
		opts.Tries = defaults.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaults.RetryDelay
	}
	if opts.DriftFactor <= 0 {
		opts.DriftFactor = defaults.DriftFactor
	}

	return &RedisLocker{
		redsync: redsync.New(goredis.NewPool(client)),
		opts:    opts,
		logger:  logger.Named("lock"),
	}
}

// ErrLockLost is the context cause fn observes when the lock could not be
// extended and another holder may already own the key
var ErrLockLost = errors.New("lock lost")

// WithLock executes fn while holding the distributed lock for key.
// The lock is released when fn returns, even on panic. While fn runs the lock
// is extended every half expiry; if an extension fails, fn's context is
// cancelled with ErrLockLost and WithLock reports it. Otherwise the error
// returned by fn is passed through unchanged.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	mutex := l.redsync.NewMutex(
		key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
		redsync.WithDriftFactor(l.opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		l.logger.Error("failed to acquire lock", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	l.logger.Debug("lock acquired", zap.String("key", key))

	held, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(held, mutex, key, done, cancel)
	}()

	defer func() {
		close(done)
		wg.Wait()
		cancel(nil)
		// Unlock with a fresh context so a cancelled request still frees the key
		unlockCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer stop()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			l.logger.Error("failed to release lock", zap.String("key", key), zap.Bool("ok", ok), zap.Error(err))
		}
	}()

	err := fn(held)
	if cause := context.Cause(held); err == nil && errors.Is(cause, ErrLockLost) {
		return fmt.Errorf("lock %s: %w", key, cause)
	}
	return err
}

// keepAlive extends the mutex until done is closed, cancelling held when an
// extension fails
func (l *RedisLocker) keepAlive(held context.Context, mutex *redsync.Mutex, key string, done <-chan struct{}, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(l.opts.Expiry / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-held.Done():
			return
		case <-ticker.C:
			ok, err := mutex.ExtendContext(held)
			if ok && err == nil {
				continue
			}
			l.logger.Error("failed to extend lock", zap.String("key", key), zap.Bool("ok", ok), zap.Error(err))
			cancel(ErrLockLost)
			return
		}
	}
}
