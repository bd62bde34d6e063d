package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/apperr"
)

// ErrLockNotAcquired is returned once every attempt found the key held by someone else.
// It is a Conflict: the caller raced another mutation of the same appointment.
var ErrLockNotAcquired = fmt.Errorf("appointment is being modified, retry: %w", apperr.ErrConflict)

// Locker serializes mutations of one appointment across processes.
type Locker interface {
	WithAppointmentLock(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context) error) error
}

type LockOptions struct {
	TTL        time.Duration
	Retries    int
	RetryDelay time.Duration
}

type RedisLocker struct {
	client *redis.Client
	opts   LockOptions
	logger zerolog.Logger
}

func NewRedisLocker(client *redis.Client, opts LockOptions, logger zerolog.Logger) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Second
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	return &RedisLocker{client: client, opts: opts, logger: logger}
}

func appointmentKey(id uuid.UUID) string {
	return fmt.Sprintf("lock:appointment:%s", id.String())
}

func (l *RedisLocker) WithAppointmentLock(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context) error) error {
	return l.WithLock(ctx, appointmentKey(appointmentID), fn)
}

// WithLock runs fn while holding key. fn receives a context bounded by the lock TTL so work
// cannot outlive the lock.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// Release even if ctx was cancelled mid-operation.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := l.release(relCtx, key, token); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("lock release failed, waiting for ttl")
		}
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.opts.TTL)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return apperr.Storage("acquire lock", err)
		}
		if ok {
			return nil
		}
		if attempt >= l.opts.Retries {
			l.logger.Debug().Str("key", key).Int("attempts", attempt).Msg("lock busy")
			return ErrLockNotAcquired
		}

		t := time.NewTimer(l.opts.RetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Ping is used by the readiness probe.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
