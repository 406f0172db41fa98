package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/laces/genesis/internal/connection"
	"github.com/laces/genesis/internal/domain"
)

// heartbeatInterval and heartbeatGrace mirror the collaboration surface's
// 15s cadence with a 2x grace period before a silent peer is detached.
const (
	heartbeatInterval = 15 * time.Second
	heartbeatGrace    = 2 * heartbeatInterval
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SessionAuthenticator resolves a bearer token to its session and owning
// user — internal/sessions.Repository satisfies this.
type SessionAuthenticator interface {
	GetActiveByToken(ctx context.Context, token string) (domain.Session, domain.User, error)
}

// WebSocketHandlers upgrades /ws/{session_id} into a duplex connection and
// registers it with the Connection Manager.
type WebSocketHandlers struct {
	sessions SessionAuthenticator
	conn     *connection.Manager
	logger   *slog.Logger
}

func NewWebSocketHandlers(sessions SessionAuthenticator, conn *connection.Manager, logger *slog.Logger) *WebSocketHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandlers{sessions: sessions, conn: conn, logger: logger.With("component", "websocket")}
}

// Serve handles GET /ws/{session_id}. The caller authenticates with the
// same bearer token used on REST calls, passed as a `token` query
// parameter since the WebSocket handshake carries no custom headers in
// most browser clients.
func (h *WebSocketHandlers) Serve(w http.ResponseWriter, r *http.Request) {
	pathSessionID := mux.Vars(r)["session_id"]
	token := r.URL.Query().Get("token")

	session, user, err := h.sessions.GetActiveByToken(r.Context(), token)
	if err != nil || session.Expired(time.Now()) || session.ID != pathSessionID {
		conn, upErr := upgrader.Upgrade(w, r, nil)
		if upErr != nil {
			return
		}
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid or expired session")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", pathSessionID, "error", err)
		return
	}

	transport := newWSTransport(conn)
	h.conn.Attach(session.ID, user.ID, transport)
	go h.pingLoop(transport)
	go h.readLoop(session.ID, user.ID, transport)
}

// pingLoop sends a server-initiated ping frame on the same cadence as the
// client heartbeat, so a silent client still sees liveness traffic.
func (h *WebSocketHandlers) pingLoop(t *wsTransport) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.sendFrame(map[string]string{"type": "ping"}); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandlers) readLoop(sessionID, userID string, t *wsTransport) {
	defer h.conn.Detach(sessionID)

	t.conn.SetReadDeadline(time.Now().Add(heartbeatGrace))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(heartbeatGrace))
		h.conn.Touch(sessionID)
		return nil
	})

	for {
		_, raw, err := t.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "subscribe":
			if err := h.conn.SubscribeTwin(sessionID, frame.TwinID); err != nil {
				continue
			}
			_ = t.sendFrame(map[string]string{"type": "subscribed", "twin_id": frame.TwinID})
		case "unsubscribe":
			h.conn.UnsubscribeTwin(sessionID)
		case "heartbeat":
			t.conn.SetReadDeadline(time.Now().Add(heartbeatGrace))
			h.conn.Touch(sessionID)
			_ = t.sendFrame(map[string]string{"type": "pong"})
		case "cursor_move":
			event := connection.NewEvent("cursor_update", frame.TwinID, domain.NewObject(map[string]domain.JSONValue{
				"position": frame.Position,
				"user_id":  domain.NewString(userID),
			}), connection.EventSourceConnManager)
			_ = h.conn.BroadcastExcept(frame.TwinID, event, sessionID)
		}
	}
}

type clientFrame struct {
	Type     string           `json:"type"`
	TwinID   string           `json:"twin_id"`
	Position domain.JSONValue `json:"position"`
}

// wsTransport adapts a *websocket.Conn to connection.Transport.
type wsTransport struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &wsTransport{conn: conn, ctx: ctx, cancel: cancel}
}

func (t *wsTransport) Send(event connection.Event) error {
	switch event.Type {
	case connection.EventTypeOperationApplied:
		opID, _ := event.Data.Field("ID")
		userID, _ := event.Data.Field("UserID")
		return t.sendFrame(map[string]interface{}{
			"type":         "edit_operation",
			"operation_id": opID,
			"user_id":      userID,
			"operation":    event.Data,
		})
	case "cursor_update":
		userID, _ := event.Data.Field("user_id")
		position, _ := event.Data.Field("position")
		return t.sendFrame(map[string]interface{}{
			"type":     "cursor_update",
			"user_id":  userID,
			"position": position,
		})
	default:
		return t.sendFrame(map[string]interface{}{
			"type": event.Type,
			"data": event.Data,
		})
	}
}

func (t *wsTransport) sendFrame(v interface{}) error {
	t.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Close() error {
	t.cancel()
	return t.conn.Close()
}

func (t *wsTransport) Context() context.Context {
	return t.ctx
}
