package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the write half of the socket a session owns. *websocket.Conn
// satisfies it; tests plug in fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Session owns a single accepted socket from admission to teardown.
// Outbound frames go through an internal mailbox drained by exactly one
// writer goroutine, which guarantees per-connection FIFO.
type Session struct {
	handle int64
	userID string
	conn   Conn

	// [MAILBOX] Decouples delivery paths from the socket write syscall.
	// A slow client saturates its own buffer, never the dispatcher.
	sendCh chan []byte
	done   chan struct{}

	closeOnce   sync.Once
	established atomic.Bool
	createdAt   time.Time

	// [LIVENESS] Single-shot idle timer, re-armed on every inbound frame.
	idleTimer *time.Timer

	// onWriteError lets the manager run the full close path when the
	// transport fails mid-delivery.
	onWriteError func()
}

func newSession(handle int64, userID string, conn Conn, bufferSize int) *Session {
	s := &Session{
		handle:    handle,
		userID:    userID,
		conn:      conn,
		sendCh:    make(chan []byte, bufferSize),
		done:      make(chan struct{}),
		createdAt: time.Now(),
	}
	s.established.Store(true)
	return s
}

func (s *Session) Handle() int64  { return s.handle }
func (s *Session) UserID() string { return s.userID }

// Established reports whether the session still accepts outbound frames.
func (s *Session) Established() bool { return s.established.Load() }

// Push enqueues one serialized frame for transmission. It waits up to
// timeout for mailbox space so transient jitter does not drop frames,
// then gives up so the caller can fall back to the offline queue.
func (s *Session) Push(payload []byte, timeout time.Duration) bool {
	if !s.established.Load() {
		return false
	}
	select {
	case <-s.done:
		return false
	case s.sendCh <- payload:
		return true
	case <-time.After(timeout):
		return false
	}
}

// writeLoop is the single writer for this socket.
func (s *Session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.sendCh:
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.established.Store(false)
				if s.onWriteError != nil {
					s.onWriteError()
				}
				return
			}
		}
	}
}

// close tears the session down exactly once: stop the liveness timer,
// emit the close frame, release the writer and the underlying socket.
func (s *Session) close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.established.Store(false)
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}

		// Control frames are safe to write concurrently with the writer
		// goroutine, so the close code goes out even with a full mailbox.
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

		close(s.done)
		_ = s.conn.Close()
	})
}
