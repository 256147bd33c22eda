/*
Package session owns the lifecycle of every socket accepted by this process:
admission, liveness, supersession and idempotent teardown.

The manager is the only writer of the local handle→session table; the
distributed registry is mutated through compare-and-delete operations so
that races between connect, disconnect, reconnect and restart converge on a
consistent view. In-process state (timers, the sockets themselves) never
crosses process boundaries.
*/
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
	"github.com/notifhub/notify-delivery-service/internal/domain/registry"
	"github.com/notifhub/notify-delivery-service/internal/metrics"
)

// cleanupTimeout bounds registry calls on teardown paths, which run
// detached from any request context.
const cleanupTimeout = 5 * time.Second

// Manager admits sockets, enforces the one-live-binding-per-user rule and
// reaps idle connections.
type Manager struct {
	server string // hostname:port identity paired with every local handle
	reg    registry.Registrar
	logger *slog.Logger

	idleTimeout time.Duration
	sendTimeout time.Duration
	bufferSize  int

	sessions   sync.Map // int64 → *Session
	nextHandle atomic.Int64
	active     atomic.Int64
	started    time.Time
}

type Config struct {
	Server      string
	IdleTimeout time.Duration
	SendTimeout time.Duration
	BufferSize  int
}

func NewManager(cfg Config, reg registry.Registrar, logger *slog.Logger) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 180 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 500 * time.Millisecond
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	return &Manager{
		server:      cfg.Server,
		reg:         reg,
		logger:      logger.With(slog.String("component", "session")),
		idleTimeout: cfg.IdleTimeout,
		sendTimeout: cfg.SendTimeout,
		bufferSize:  cfg.BufferSize,
		started:     time.Now(),
	}
}

// Server returns this process's identity in the registry.
func (m *Manager) Server() string { return m.server }

// Admit runs the full admission sequence for a validated user:
// stale-handle cleanup, supersession of any prior connection, registry
// publication and heartbeat arming. The new client always wins.
func (m *Manager) Admit(ctx context.Context, userID string, conn Conn) (*Session, error) {
	handle := m.nextHandle.Add(1)
	binding := registry.Binding{Server: m.server, Handle: handle}

	// A previous incarnation of this process may have died with this
	// handle still registered. Reclaim it before publishing.
	if _, err := m.reg.LookupByHandle(ctx, binding); err == nil {
		if err := m.reg.UnbindByHandle(ctx, binding); err != nil {
			return nil, err
		}
	}

	// Supersession: a locally owned prior connection is closed with 4003
	// before the new binding is published. A remote prior is evicted from
	// the registry by Bind's multi-op; its owner notices on next push.
	if prior, err := m.reg.LookupByUser(ctx, userID); err == nil {
		if prior.Server == m.server && m.IsEstablished(prior.Handle) {
			m.logger.Info("superseding connection",
				slog.String("user_id", userID),
				slog.Int64("old_handle", prior.Handle),
				slog.Int64("new_handle", handle))
			m.Close(prior.Handle, model.CloseSuperseded, "superseded by new connection")
			metrics.SessionsSuperseded.Inc()
		}
	}

	if _, err := m.reg.Bind(ctx, userID, binding); err != nil {
		return nil, err
	}

	s := newSession(handle, userID, conn, m.bufferSize)
	s.onWriteError = func() { m.Close(handle, websocket.CloseAbnormalClosure, "transport failure") }
	s.idleTimer = time.AfterFunc(m.idleTimeout, func() {
		m.logger.Info("idle timeout", slog.String("user_id", userID), slog.Int64("handle", handle))
		m.Close(handle, model.CloseIdleTimeout, "idle timeout")
	})

	m.sessions.Store(handle, s)
	m.active.Add(1)
	metrics.SessionsActive.Inc()
	go s.writeLoop()

	return s, nil
}

// IsEstablished reports whether the handle maps to a live local session.
func (m *Manager) IsEstablished(handle int64) bool {
	if v, ok := m.sessions.Load(handle); ok {
		return v.(*Session).Established()
	}
	return false
}

// Push enqueues one serialized frame on a local session. False means the
// session is gone, closing, or its mailbox stayed full past the send window.
func (m *Manager) Push(handle int64, payload []byte) bool {
	v, ok := m.sessions.Load(handle)
	if !ok {
		return false
	}
	return v.(*Session).Push(payload, m.sendTimeout)
}

// Touch re-arms the liveness timer for a handle after an inbound frame.
func (m *Manager) Touch(handle int64) {
	if v, ok := m.sessions.Load(handle); ok {
		s := v.(*Session)
		if s.idleTimer != nil {
			s.idleTimer.Reset(m.idleTimeout)
		}
	}
}

// Close runs the teardown path for a handle: socket close frame, timer
// cancellation, table removal and compare-and-delete registry cleanup.
// Calling it twice for the same handle is harmless.
func (m *Manager) Close(handle int64, code int, reason string) {
	v, loaded := m.sessions.LoadAndDelete(handle)
	if !loaded {
		return
	}
	s := v.(*Session)
	s.close(code, reason)
	m.active.Add(-1)
	metrics.SessionsActive.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	binding := registry.Binding{Server: m.server, Handle: handle}
	if err := m.reg.UnbindByHandle(ctx, binding); err != nil {
		// The entry stays until the next admission or reap reconciles it.
		m.logger.Error("registry cleanup failed",
			slog.Int64("handle", handle), slog.Any("err", err))
	}

	m.logger.Info("session closed",
		slog.String("user_id", s.userID),
		slog.Int64("handle", handle),
		slog.Int("code", code),
		slog.String("reason", reason))
}

// Shutdown closes every live session with a normal close frame. Registry
// entries are removed through the regular close path.
func (m *Manager) Shutdown() {
	m.sessions.Range(func(key, _ any) bool {
		m.Close(key.(int64), 1001, "server shutting down")
		return true
	})
}

// Active reports the number of live local sessions.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Uptime reports how long this manager has been accepting sockets.
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.started)
}
