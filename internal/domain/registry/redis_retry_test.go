package registry

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// attemptHook timestamps every GET attempt so tests can assert the retry
// count and spacing. The client's own retries are disabled so each recorded
// attempt maps to exactly one registry-level try.
type attemptHook struct {
	mu    sync.Mutex
	times []time.Time
}

func (h *attemptHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *attemptHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if strings.EqualFold(cmd.Name(), "get") {
			h.mu.Lock()
			h.times = append(h.times, time.Now())
			h.mu.Unlock()
		}
		return next(ctx, cmd)
	}
}

func (h *attemptHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *attemptHook) attempts() []time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time(nil), h.times...)
}

func newFaultableRegistry(t *testing.T) (*RedisRegistry, *miniredis.Miniredis, *attemptHook) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1, // retry policy lives in the registry, not the client
		DialTimeout: 500 * time.Millisecond,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	hook := &attemptHook{}
	rdb.AddHook(hook)
	return NewRedisRegistry(rdb, slog.Default()), mr, hook
}

func TestBindRetriesConnectionFaultsThreeTimes(t *testing.T) {
	r, mr, hook := newFaultableRegistry(t)
	mr.Close() // every dial now fails with a connection-level error

	start := time.Now()
	_, err := r.Bind(context.Background(), "42", Binding{Server: "srv-1:9502", Handle: 1})
	require.Error(t, err)
	var netErr net.Error
	assert.ErrorAs(t, err, &netErr)

	attempts := hook.attempts()
	require.Len(t, attempts, 3)

	// Two constant 200ms pauses separate the three attempts.
	assert.GreaterOrEqual(t, attempts[2].Sub(attempts[0]), 350*time.Millisecond)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestLookupMissingUserDoesNotRetry(t *testing.T) {
	r, _, hook := newFaultableRegistry(t)

	_, err := r.LookupByUser(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotFound)

	// A missing key is a data-shape answer, not a transport fault.
	assert.Len(t, hook.attempts(), 1)
}

func TestBindFaultLeavesNoPartialEntry(t *testing.T) {
	r, mr, hook := newFaultableRegistry(t)

	// A server-side error is a data-shape answer: no retry storm, and the
	// binding converges to neither entry rather than a partial pair.
	mr.SetError("injected fault")
	_, err := r.Bind(context.Background(), "42", Binding{Server: "srv-1:9502", Handle: 1})
	require.Error(t, err)
	mr.SetError("")

	assert.Len(t, hook.attempts(), 1)
	assert.False(t, mr.Exists("ws:user_fd:42"))
	assert.False(t, mr.Exists("ws:fd_user_map:srv-1:9502#1"))
}
