// Package realtime upgrades authenticated clients to websocket sessions and
// serves their room joins and acknowledgements.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jwalitptl/lifedrop-api/internal/middleware"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/httputil"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
)

// Client events.
const (
	EventJoinBloodType  = "join_blood_type"
	EventLeaveBloodType = "leave_blood_type"
	EventJoinLocation   = "join_location"
	EventLeaveLocation  = "leave_location"
	EventPing           = "ping"
	EventPong           = "pong"
	EventJoined         = "joined"
	EventError          = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Reader marks notifications read on behalf of a connected user.
type Reader interface {
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
}

type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Handler struct {
	registry *realtime.Registry
	auth     middleware.Authenticator
	reader   Reader
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler builds the websocket endpoint. allowedOrigins empty or
// containing "*" accepts any origin.
func NewHandler(registry *realtime.Registry, auth middleware.Authenticator, reader Reader, allowedOrigins []string, log *logger.Logger) *Handler {
	return &Handler{
		registry: registry,
		auth:     auth,
		reader:   reader,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		log: log.With("component", "realtime_handler"),
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ws", h.Serve)
}

// Serve authenticates the caller before upgrading. Browsers cannot set
// headers on websocket requests, so the token may come as ?token=.
func (h *Handler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		var err error
		if token, err = middleware.BearerToken(c.GetHeader("Authorization")); err != nil {
			httputil.RespondWithError(c, errors.Unauthorized(err))
			return
		}
	}
	actor, err := h.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		h.log.Warn("websocket upgrade failed", "user_id", actor.UserID, "error", err.Error())
		return
	}

	session := h.registry.Connect(actor.UserID, &conn{Conn: ws})
	defer h.registry.Disconnect(session)

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(ws, done)

	h.readLoop(c.Request.Context(), ws, session)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, session *realtime.Session) {
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket closed unexpectedly", "session", session.ID, "error", err.Error())
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.reply(session, EventError, map[string]string{"message": "malformed message"})
			continue
		}
		h.handle(ctx, session, msg)
	}
}

func (h *Handler) handle(ctx context.Context, session *realtime.Session, msg clientMessage) {
	switch msg.Event {
	case EventJoinBloodType, EventLeaveBloodType:
		var body struct {
			BloodType model.BloodType `json:"blood_type"`
		}
		if err := json.Unmarshal(msg.Data, &body); err != nil || !body.BloodType.Valid() {
			h.reply(session, EventError, map[string]string{"message": "unknown blood type"})
			return
		}
		h.room(session, msg.Event == EventJoinBloodType, realtime.BloodTypeRoom(body.BloodType))

	case EventJoinLocation, EventLeaveLocation:
		var body struct {
			City string `json:"city"`
		}
		if err := json.Unmarshal(msg.Data, &body); err != nil || strings.TrimSpace(body.City) == "" {
			h.reply(session, EventError, map[string]string{"message": "city is required"})
			return
		}
		h.room(session, msg.Event == EventJoinLocation, realtime.LocationRoom(body.City))

	case realtime.EventNotificationRead:
		var body struct {
			NotificationID uuid.UUID `json:"notification_id"`
		}
		if err := json.Unmarshal(msg.Data, &body); err != nil || body.NotificationID == uuid.Nil {
			h.reply(session, EventError, map[string]string{"message": "notification_id is required"})
			return
		}
		if err := h.reader.MarkRead(ctx, body.NotificationID, session.UserID); err != nil {
			h.reply(session, EventError, map[string]string{"message": errors.PublicMessage(err)})
		}

	case EventPing:
		h.reply(session, EventPong, map[string]string{})

	default:
		h.reply(session, EventError, map[string]string{"message": "unknown event " + msg.Event})
	}
}

func (h *Handler) room(session *realtime.Session, join bool, room string) {
	if !join {
		h.registry.Leave(session, room)
		return
	}
	h.registry.Join(session, room)
	h.reply(session, EventJoined, map[string]string{"room": room})
}

func (h *Handler) reply(session *realtime.Session, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := session.Write(realtime.Message{Event: event, Data: data, Time: time.Now().UTC()}); err != nil {
		h.log.Debug("failed to reply on websocket", "session", session.ID, "error", err.Error())
	}
}

// keepAlive pings the client so dead connections hit the read deadline.
func (h *Handler) keepAlive(ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// conn bounds every frame write with a deadline.
type conn struct {
	*websocket.Conn
}

func (c *conn) WriteJSON(v interface{}) error {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.Conn.WriteJSON(v)
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
