package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/classhive/collab/internal/common"
	"github.com/classhive/collab/internal/feed"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	ackBuffer = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type streamControl struct {
	Action string   `json:"action"`
	Scopes []string `json:"scopes"`
}

type streamAck struct {
	Type     string   `json:"type"`
	Action   string   `json:"action,omitempty"`
	Accepted []string `json:"accepted,omitempty"`
	Rejected []string `json:"rejected,omitempty"`
}

// streamClient owns one websocket connection. The connection permits a
// single concurrent writer, so the read side never writes directly: control
// acks are queued on acks and flushed by writePump alongside feed events
// and pings.
type streamClient struct {
	conn *websocket.Conn
	sub  *feed.Subscription
	acks chan streamAck
}

// queueAck hands a control reply to the write pump. If the pump is
// saturated the ack is dropped; the client can re-send the control frame.
func (cl *streamClient) queueAck(ack streamAck) {
	select {
	case cl.acks <- ack:
	default:
	}
}

// Stream upgrades the request to a websocket and relays feed events for the
// scopes the client subscribes to. Every connection starts subscribed to the
// caller's own notification scope.
func (h *Handler) Stream(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &streamClient{
		conn: conn,
		sub:  h.Broker.Subscribe(uid, feed.NotificationScope(uid)),
		acks: make(chan streamAck, ackBuffer),
	}
	defer h.Broker.Unsubscribe(cl.sub)

	go h.writePump(cl)
	h.readPump(c, cl, uid)
}

func (h *Handler) writePump(cl *streamClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-cl.sub.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription dropped"))
				return
			}
			if err := cl.conn.WriteJSON(ev); err != nil {
				return
			}
		case ack := <-cl.acks:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(ack); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readPump(c *gin.Context, cl *streamClient, uid string) {
	defer cl.conn.Close()
	cl.conn.SetReadLimit(4096)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var ctl streamControl
		if err := cl.conn.ReadJSON(&ctl); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Debug("websocket closed", zap.String("user_id", uid), zap.Error(err))
			}
			return
		}

		switch ctl.Action {
		case "subscribe":
			var accepted, rejected []string
			for _, scope := range ctl.Scopes {
				if h.scopeAllowed(c, scope, uid) {
					accepted = append(accepted, scope)
				} else {
					rejected = append(rejected, scope)
				}
			}
			if len(accepted) > 0 {
				h.Broker.AddScopes(cl.sub, accepted...)
			}
			cl.queueAck(streamAck{Type: "ack", Action: "subscribe", Accepted: accepted, Rejected: rejected})
		case "unsubscribe":
			h.Broker.RemoveScopes(cl.sub, ctl.Scopes...)
			cl.queueAck(streamAck{Type: "ack", Action: "unsubscribe", Accepted: ctl.Scopes})
		default:
			cl.queueAck(streamAck{Type: "error", Action: ctl.Action})
		}
	}
}

// scopeAllowed enforces who may watch what: notification scopes are private
// to their owner, conversation scopes require membership, forum and presence
// scopes are open to any authenticated user.
func (h *Handler) scopeAllowed(c *gin.Context, scope, uid string) bool {
	switch {
	case strings.HasPrefix(scope, "notifications:"):
		return scope == feed.NotificationScope(uid)
	case strings.HasPrefix(scope, "conversation:"):
		convID := strings.TrimPrefix(scope, "conversation:")
		if convID == "" || convID == "*" {
			return false
		}
		return h.Chat.IsParticipant(c.Request.Context(), convID, uid)
	case scope == feed.ForumScope, scope == feed.PresenceScope:
		return true
	default:
		return false
	}
}
