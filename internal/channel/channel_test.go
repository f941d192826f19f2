package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/realtime"
	"github.com/jwalitptl/lifedrop-api/pkg/circuitbreaker"
	"github.com/jwalitptl/lifedrop-api/pkg/messaging"
)

func testUser() *model.User {
	return &model.User{
		Base:                    model.Base{ID: uuid.New()},
		FirstName:               "Ravi",
		LastName:                "Kumar",
		Email:                   "ravi@example.com",
		FCMToken:                "device-token",
		NotificationPreferences: model.NotificationPreferences{Email: true, Push: true},
	}
}

func testNotification() *model.Notification {
	return &model.Notification{
		Base:     model.Base{ID: uuid.New()},
		Type:     model.NotificationUrgentBloodNeeded,
		Title:    "Urgent: O- blood needed",
		Message:  "A patient near you needs O- blood.",
		Priority: model.PriorityCritical,
		Category: model.CategoryEmergency,
		Data:     model.JSONMap{"units": 2},
	}
}

func TestPushSend(t *testing.T) {
	var got fcmRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/lifedrop-test/messages:send", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"projects/lifedrop-test/messages/1"}`))
	}))
	defer srv.Close()

	push := NewPush(PushConfig{ProjectID: "lifedrop-test", Endpoint: srv.URL},
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"}))

	n := testNotification()
	require.NoError(t, push.Send(context.Background(), testUser(), n))

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "device-token", got.Message.Token)
	assert.Equal(t, n.Title, got.Message.Notification.Title)
	assert.Equal(t, "2", got.Message.Data["units"])
	assert.Equal(t, n.ID.String(), got.Message.Data["notification_id"])
	require.NotNil(t, got.Message.Android)
	assert.Equal(t, "high", got.Message.Android.Priority)
}

func TestPushRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`))
	}))
	defer srv.Close()

	push := NewPush(PushConfig{ProjectID: "p", Endpoint: srv.URL},
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"}))

	err := push.Send(context.Background(), testUser(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestPushSkipsWithoutToken(t *testing.T) {
	push := NewPush(PushConfig{ProjectID: "p", Endpoint: "http://127.0.0.1:0"},
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "secret"}))

	u := testUser()
	u.FCMToken = ""
	assert.ErrorIs(t, push.Send(context.Background(), u, testNotification()), ErrSkipped)

	u = testUser()
	u.NotificationPreferences.Push = false
	assert.ErrorIs(t, push.Send(context.Background(), u, testNotification()), ErrSkipped)
}

type fakeSender struct {
	sent  []*gomail.Message
	err   error
	delay time.Duration
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	time.Sleep(f.delay)
	f.sent = append(f.sent, m...)
	return f.err
}

func TestEmailSend(t *testing.T) {
	sender := &fakeSender{}
	email := NewEmailWithSender(sender, EmailConfig{From: "noreply@lifedrop.test", AppURL: "https://app.lifedrop.test"})

	n := testNotification()
	n.ActionURL = "/requests/42"
	require.NoError(t, email.Send(context.Background(), testUser(), n))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"ravi@example.com"}, sender.sent[0].GetHeader("To"))
	assert.Equal(t, []string{n.Title}, sender.sent[0].GetHeader("Subject"))
	assert.Equal(t, "https://app.lifedrop.test/requests/42", email.link(n.ActionURL))
}

func TestEmailSkipsWhenOptedOut(t *testing.T) {
	sender := &fakeSender{}
	email := NewEmailWithSender(sender, EmailConfig{From: "noreply@lifedrop.test"})

	u := testUser()
	u.NotificationPreferences.Email = false
	assert.ErrorIs(t, email.Send(context.Background(), u, testNotification()), ErrSkipped)
	assert.Empty(t, sender.sent)
}

func TestEmailHonoursContext(t *testing.T) {
	email := NewEmailWithSender(&fakeSender{delay: 200 * time.Millisecond}, EmailConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := email.Send(ctx, testUser(), testNotification())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRealtimePublishesToUserRoom(t *testing.T) {
	broker := messaging.NewMemoryBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := broker.Subscribe(ctx, "realtime")
	require.NoError(t, err)

	u := testUser()
	require.NoError(t, NewRealtime(realtime.NewPublisher(broker, "realtime")).Send(ctx, u, testNotification()))

	select {
	case raw := <-msgs:
		var env messaging.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		assert.Equal(t, "user_"+u.ID.String(), env.Room)
		assert.Equal(t, "notification", env.Event)
	case <-time.After(time.Second):
		t.Fatal("no envelope published")
	}
}

type stubChannel struct {
	err   error
	calls int
}

func (s *stubChannel) Name() string { return "stub" }

func (s *stubChannel) Send(context.Context, *model.User, *model.Notification) error {
	s.calls++
	return s.err
}

func TestWithBreaker(t *testing.T) {
	settings := circuitbreaker.DefaultSettings("stub")
	settings.ConsecutiveFailures = 2
	settings.Timeout = time.Hour

	t.Run("skips never trip", func(t *testing.T) {
		stub := &stubChannel{err: ErrSkipped}
		ch := WithBreaker(stub, circuitbreaker.NewCircuitBreaker(settings))
		for i := 0; i < 5; i++ {
			assert.ErrorIs(t, ch.Send(context.Background(), testUser(), testNotification()), ErrSkipped)
		}
		assert.Equal(t, 5, stub.calls)
	})

	t.Run("failures open the breaker", func(t *testing.T) {
		stub := &stubChannel{err: errors.New("smtp down")}
		ch := WithBreaker(stub, circuitbreaker.NewCircuitBreaker(settings))
		for i := 0; i < 2; i++ {
			assert.Error(t, ch.Send(context.Background(), testUser(), testNotification()))
		}
		assert.ErrorIs(t, ch.Send(context.Background(), testUser(), testNotification()), circuitbreaker.ErrOpen)
		assert.Equal(t, 2, stub.calls)
		assert.Equal(t, "stub", ch.Name())
	})
}

func TestEnabled(t *testing.T) {
	m := model.DeliveryMethods{Push: true}
	assert.True(t, Enabled(m, NamePush))
	assert.False(t, Enabled(m, NameEmail))
	assert.False(t, Enabled(m, NameRealtime))
	assert.False(t, Enabled(model.AllDeliveryMethods(), "sms"))
}
