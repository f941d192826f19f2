package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifedrop-api/internal/handler/handlertest"
	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
	"github.com/jwalitptl/lifedrop-api/pkg/errors"
	"github.com/jwalitptl/lifedrop-api/pkg/logger"
	"github.com/jwalitptl/lifedrop-api/pkg/metrics"
)

type readerFunc func(ctx context.Context, id, userID uuid.UUID) error

func (f readerFunc) MarkRead(ctx context.Context, id, userID uuid.UUID) error { return f(ctx, id, userID) }

type server struct {
	registry *realtime.Registry
	url      string
	donor    model.Actor
	reads    chan uuid.UUID
}

func newServer(t *testing.T) *server {
	gin.SetMode(gin.TestMode)
	s := &server{
		registry: realtime.NewRegistry(logger.Nop(), metrics.NewNop()),
		donor:    model.Actor{UserID: uuid.New(), Role: model.RoleDonor},
		reads:    make(chan uuid.UUID, 1),
	}
	reader := readerFunc(func(_ context.Context, id, userID uuid.UUID) error {
		if userID != s.donor.UserID {
			return errors.NotFound("notification", nil)
		}
		s.reads <- id
		return nil
	})

	r := gin.New()
	NewHandler(s.registry, handlertest.Tokens{"donor": s.donor}, reader, nil, logger.Nop()).RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	s.url = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return s
}

func (s *server) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(clientMessage{Event: event, Data: raw}))
}

func next(t *testing.T, ws *websocket.Conn) realtime.Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.Message
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestRejectsBadToken(t *testing.T) {
	s := newServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(s.url+"?token=nope", nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, s.registry.SessionCount())
}

func TestJoinBloodTypeReceivesEmits(t *testing.T) {
	s := newServer(t)
	ws := s.dial(t, "donor")

	send(t, ws, EventJoinBloodType, map[string]string{"blood_type": "O-"})
	joined := next(t, ws)
	require.Equal(t, EventJoined, joined.Event)
	assert.JSONEq(t, `{"room":"blood_type_O-"}`, string(joined.Data))

	delivered := s.registry.Emit(realtime.BloodTypeRoom(model.BloodTypeONeg), realtime.EventNewBloodRequest, json.RawMessage(`{"id":"r1"}`))
	assert.Equal(t, 1, delivered)

	msg := next(t, ws)
	assert.Equal(t, realtime.EventNewBloodRequest, msg.Event)
	assert.JSONEq(t, `{"id":"r1"}`, string(msg.Data))
}

func TestUserRoomIsJoinedOnConnect(t *testing.T) {
	s := newServer(t)
	ws := s.dial(t, "donor")

	// a ping round trip guarantees the session is registered
	send(t, ws, EventPing, nil)
	require.Equal(t, EventPong, next(t, ws).Event)

	assert.Equal(t, 1, s.registry.Emit(realtime.UserRoom(s.donor.UserID), realtime.EventNotification, json.RawMessage(`{}`)))
	assert.Equal(t, realtime.EventNotification, next(t, ws).Event)
}

func TestClientErrors(t *testing.T) {
	s := newServer(t)
	ws := s.dial(t, "donor")

	send(t, ws, EventJoinBloodType, map[string]string{"blood_type": "Z+"})
	assert.Equal(t, EventError, next(t, ws).Event)

	send(t, ws, EventJoinLocation, map[string]string{"city": " "})
	assert.Equal(t, EventError, next(t, ws).Event)

	send(t, ws, "dance", nil)
	msg := next(t, ws)
	assert.Equal(t, EventError, msg.Event)
	assert.Contains(t, string(msg.Data), "unknown event dance")
}

func TestNotificationReadAck(t *testing.T) {
	s := newServer(t)
	ws := s.dial(t, "donor")
	id := uuid.New()

	send(t, ws, realtime.EventNotificationRead, map[string]uuid.UUID{"notification_id": id})

	select {
	case got := <-s.reads:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not marked read")
	}
}
