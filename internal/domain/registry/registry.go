/*
Package registry owns the distributed user↔connection mapping shared by every
worker of every server instance, plus the per-user offline queues.

Key Architectural Concepts:
  - Dual mapping: a forward entry (user → server#handle) and an inverse entry
    (server#handle → user) are kept in lock-step under a transactional
    pipeline, so any reader resolves a consistent binding.
  - Compare-and-delete: unbind paths remove entries only while they still hold
    the expected value. A late close for a superseded handle therefore never
    erases the newer binding.
  - Offline queues: when a user has no live binding, notifications are
    appended to a per-user list with a sliding TTL and replayed in FIFO order
    on the next reconnect.
*/
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
)

// ErrNotFound is returned by lookups when no entry exists.
var ErrNotFound = errors.New("registry: entry not found")

// Binding is a consistent (server, handle) pair published for a user.
type Binding struct {
	Server string // hostname:port identity of the owning process
	Handle int64  // socket handle, unique only within that process
}

// String encodes the binding for storage. '#' is safe because the server
// identity is host:port and the handle is numeric.
func (b Binding) String() string {
	return b.Server + "#" + strconv.FormatInt(b.Handle, 10)
}

func ParseBinding(s string) (Binding, error) {
	i := strings.LastIndexByte(s, '#')
	if i < 0 {
		return Binding{}, fmt.Errorf("registry: malformed binding %q", s)
	}
	h, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return Binding{}, fmt.Errorf("registry: malformed handle in %q: %w", s, err)
	}
	return Binding{Server: s[:i], Handle: h}, nil
}

// Registrar is the authoritative distributed map of live user↔handle
// associations. All implementations must be safe for concurrent use from
// every delivery path.
type Registrar interface {
	// Bind atomically publishes both entries for (userID, b), evicting any
	// prior binding of the same user first. The prior binding, if one
	// existed, is returned so the caller can tear down the old socket.
	Bind(ctx context.Context, userID string, b Binding) (*Binding, error)

	// LookupByUser resolves the live binding for a user.
	// Returns ErrNotFound when the user has no binding.
	LookupByUser(ctx context.Context, userID string) (Binding, error)

	// LookupByHandle resolves the user owning a binding.
	// Returns ErrNotFound when the handle is unknown.
	LookupByHandle(ctx context.Context, b Binding) (string, error)

	// Unbind removes both entries only while they still match (userID, b).
	Unbind(ctx context.Context, userID string, b Binding) error

	// UnbindByHandle removes the inverse entry and the forward entry only if
	// the forward entry still points at b.
	UnbindByHandle(ctx context.Context, b Binding) error

	// EnqueueOffline appends n to the user's offline queue and refreshes
	// the queue TTL.
	EnqueueOffline(ctx context.Context, userID string, n model.Notification) error

	// DrainOffline atomically reads and deletes the user's offline queue,
	// returning the records in FIFO order.
	DrainOffline(ctx context.Context, userID string) ([]model.Notification, error)

	// OfflineLen reports the current offline queue length.
	OfflineLen(ctx context.Context, userID string) (int64, error)
}
