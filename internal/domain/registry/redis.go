package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
)

const (
	// OfflineTTL bounds how long undelivered notifications survive.
	OfflineTTL = 7 * 24 * time.Hour

	maxAttempts = 3
	retryDelay  = 200 * time.Millisecond
)

// Interface guard
var _ Registrar = (*RedisRegistry)(nil)

// unbindScript deletes forward and inverse entries with compare-and-delete
// semantics. KEYS[1] forward, KEYS[2] inverse; ARGV[1] expected binding,
// ARGV[2] expected user.
var unbindScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('DEL', KEYS[1])
end
if redis.call('GET', KEYS[2]) == ARGV[2] then
	redis.call('DEL', KEYS[2])
end
return 1
`)

// unbindByHandleScript removes the inverse entry unconditionally and the
// forward entry only while it still points at this handle. KEYS[1] inverse;
// ARGV[1] binding, ARGV[2] forward key prefix.
var unbindByHandleScript = redis.NewScript(`
local uid = redis.call('GET', KEYS[1])
redis.call('DEL', KEYS[1])
if uid then
	local fwd = ARGV[2] .. uid
	if redis.call('GET', fwd) == ARGV[1] then
		redis.call('DEL', fwd)
	end
end
return uid
`)

// RedisRegistry implements Registrar on a Redis-compatible service.
type RedisRegistry struct {
	rdb    redis.UniversalClient
	logger *slog.Logger
}

func NewRedisRegistry(rdb redis.UniversalClient, logger *slog.Logger) *RedisRegistry {
	return &RedisRegistry{
		rdb:    rdb,
		logger: logger.With(slog.String("component", "registry")),
	}
}

// retryable reports whether an error is connection-level. Data-shape errors
// (missing keys, decode failures) propagate immediately; only transport
// faults earn the 3x200ms policy.
func retryable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, redis.Nil),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// withRetry runs op up to maxAttempts times with a constant retryDelay
// between tries, but only for connection-level failures.
func withRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(retryDelay)),
		backoff.WithMaxTries(maxAttempts),
	)
}

func (r *RedisRegistry) Bind(ctx context.Context, userID string, b Binding) (*Binding, error) {
	return withRetry(ctx, func() (*Binding, error) {
		var prior *Binding

		raw, err := r.rdb.Get(ctx, userKey(userID)).Result()
		switch {
		case err == nil:
			parsed, perr := ParseBinding(raw)
			if perr != nil {
				// A corrupt forward entry is overwritten, not fatal.
				r.logger.Warn("discarding corrupt forward entry",
					slog.String("user_id", userID), slog.String("raw", raw))
			} else if parsed != b {
				prior = &parsed
			}
		case errors.Is(err, redis.Nil):
			// No prior binding.
		default:
			return nil, err
		}

		// Single multi-op removes the superseded pair and installs the new
		// one, so no reader ever observes the user with zero or two bindings.
		pipe := r.rdb.TxPipeline()
		if prior != nil {
			pipe.Del(ctx, handleKey(*prior))
		}
		pipe.Set(ctx, userKey(userID), b.String(), 0)
		pipe.Set(ctx, handleKey(b), userID, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
		return prior, nil
	})
}

func (r *RedisRegistry) LookupByUser(ctx context.Context, userID string) (Binding, error) {
	return withRetry(ctx, func() (Binding, error) {
		raw, err := r.rdb.Get(ctx, userKey(userID)).Result()
		if errors.Is(err, redis.Nil) {
			return Binding{}, ErrNotFound
		}
		if err != nil {
			return Binding{}, err
		}
		return ParseBinding(raw)
	})
}

func (r *RedisRegistry) LookupByHandle(ctx context.Context, b Binding) (string, error) {
	return withRetry(ctx, func() (string, error) {
		uid, err := r.rdb.Get(ctx, handleKey(b)).Result()
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return uid, err
	})
}

func (r *RedisRegistry) Unbind(ctx context.Context, userID string, b Binding) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		err := unbindScript.Run(ctx, r.rdb,
			[]string{userKey(userID), handleKey(b)},
			b.String(), userID,
		).Err()
		return struct{}{}, err
	})
	return err
}

func (r *RedisRegistry) UnbindByHandle(ctx context.Context, b Binding) error {
	_, err := withRetry(ctx, func() (struct{}, error) {
		err := unbindByHandleScript.Run(ctx, r.rdb,
			[]string{handleKey(b)},
			b.String(), userKeyPrefix,
		).Err()
		if errors.Is(err, redis.Nil) {
			// Handle was already gone; close is idempotent.
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	return err
}

func (r *RedisRegistry) EnqueueOffline(ctx context.Context, userID string, n model.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = withRetry(ctx, func() (struct{}, error) {
		pipe := r.rdb.TxPipeline()
		pipe.RPush(ctx, queueKey(userID), payload)
		pipe.Expire(ctx, queueKey(userID), OfflineTTL)
		_, err := pipe.Exec(ctx)
		return struct{}{}, err
	})
	return err
}

func (r *RedisRegistry) DrainOffline(ctx context.Context, userID string) ([]model.Notification, error) {
	items, err := withRetry(ctx, func() ([]string, error) {
		pipe := r.rdb.TxPipeline()
		rangeCmd := pipe.LRange(ctx, queueKey(userID), 0, -1)
		pipe.Del(ctx, queueKey(userID))
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
		return rangeCmd.Result()
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Notification, 0, len(items))
	for _, raw := range items {
		var n model.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			// One poisoned record must not sink the rest of the queue.
			r.logger.Warn("skipping undecodable offline record",
				slog.String("user_id", userID), slog.Any("err", err))
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *RedisRegistry) OfflineLen(ctx context.Context, userID string) (int64, error) {
	return withRetry(ctx, func() (int64, error) {
		return r.rdb.LLen(ctx, queueKey(userID)).Result()
	})
}
