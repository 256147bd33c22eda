// Package ws is the websocket front door: it validates admission input,
// hands accepted sockets to the session manager, answers the initial-state
// exchange and pumps inbound frames into the task queue.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
	"github.com/notifhub/notify-delivery-service/internal/domain/session"
	"github.com/notifhub/notify-delivery-service/internal/service"
)

// TaskEnqueuer accepts background jobs produced by inbound frames.
type TaskEnqueuer interface {
	Enqueue(t model.Task) bool
}

type WSHandler struct {
	logger   *slog.Logger
	manager  *session.Manager
	counts   service.Counter
	tasks    TaskEnqueuer
	upgrader websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, manager *session.Manager, counts service.Counter, tasks TaskEnqueuer) *WSHandler {
	return &WSHandler{
		logger:  logger.With(slog.String("component", "ws")),
		manager: manager,
		counts:  counts,
		tasks:   tasks,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Security: adjust for production
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	// Always upgrade first: the close code is the only channel the client
	// libraries reliably surface, a plain 4xx response is not.
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", "error", err)
		return
	}

	if !validUserID(userID) {
		h.logger.Warn("rejecting socket without valid userId")
		closeAndDrop(ws, model.CloseMissingUser, "missing or invalid userId")
		return
	}

	sess, err := h.manager.Admit(r.Context(), userID, ws)
	if err != nil {
		h.logger.Error("admission failed", "user_id", userID, "error", err)
		closeAndDrop(ws, model.CloseMissingUser, "admission failed")
		return
	}
	handle := sess.Handle()

	h.logger.Info("ws opened", "user_id", userID, "handle", handle)

	h.sendInitialState(r.Context(), userID, handle)

	// Anything that queued up while the user was offline is replayed off
	// the request path.
	task := model.NewTask(model.TaskProcessQueued, userID)
	h.tasks.Enqueue(task)

	h.readLoop(ws, userID, handle)
}

// sendInitialState pushes the connection acknowledgement and the unread
// snapshot. Neither failure is fatal: the socket stays useful for pushes
// even when SQL is down.
func (h *WSHandler) sendInitialState(ctx context.Context, userID string, handle int64) {
	h.pushFrame(handle, model.ConnectionFrame{
		Type:         model.FrameConnection,
		Status:       "connected",
		Message:      "WebSocket connection established",
		ConnectionID: handle,
	})

	snap, err := h.counts.Snapshot(ctx, userID)
	if err != nil {
		h.logger.Warn("initial count snapshot failed", "user_id", userID, "error", err)
		return
	}
	h.pushFrame(handle, model.NotificationCountFrame{
		Type: model.FrameNotificationCount,
		Data: snap,
	})
}

// readLoop consumes inbound frames until the peer goes away. Every frame,
// valid or not, proves liveness; only undecodable ones end the session.
func (h *WSHandler) readLoop(ws *websocket.Conn, userID string, handle int64) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			h.manager.Close(handle, websocket.CloseNormalClosure, "peer closed")
			return
		}

		h.manager.Touch(handle)

		var frame model.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Warn("undecodable inbound frame", "user_id", userID, "error", err)
			h.manager.Close(handle, websocket.CloseProtocolError, "undecodable frame")
			return
		}

		h.dispatch(userID, handle, frame)
	}
}

func (h *WSHandler) dispatch(userID string, handle int64, frame model.InboundFrame) {
	switch frame.Action {
	case model.ActionPing:
		h.pushFrame(handle, model.PongFrame{
			Type:      model.FramePong,
			Timestamp: time.Now().Unix(),
		})

	case model.ActionPong:
		// Touch already re-armed the heartbeat; nothing else to do.

	case model.ActionGetNotifications:
		snap, err := h.counts.Snapshot(context.Background(), userID)
		if err != nil {
			h.logger.Warn("count snapshot failed", "user_id", userID, "error", err)
			return
		}
		h.pushFrame(handle, model.NotificationCountFrame{
			Type: model.FrameNotificationCount,
			Data: snap,
		})

	case model.ActionSendNotification:
		target := frame.UserID
		if target == "" {
			target = userID
		}
		task := model.NewTask(model.TaskSendNotification, target)
		task.Event = frame.Event
		task.Message = frame.Message
		h.tasks.Enqueue(task)

	case model.ActionMarkRead:
		task := model.NewTask(model.TaskMarkRead, userID)
		task.NotificationID = frame.NotificationID
		h.tasks.Enqueue(task)

	default:
		h.logger.Warn("unknown action", "user_id", userID, "action", frame.Action)
	}
}

// pushFrame serializes one frame onto the session mailbox.
func (h *WSHandler) pushFrame(handle int64, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("frame marshal failed", "error", err)
		return
	}
	if !h.manager.Push(handle, payload) {
		h.logger.Debug("frame push failed", "handle", handle)
	}
}

// closeAndDrop rejects a socket that never reached admission, so the close
// sequence runs directly on the raw connection.
func closeAndDrop(ws *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = ws.Close()
}

func validUserID(s string) bool {
	if s == "" {
		return false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return err == nil && id > 0
}
