package channel

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/jwalitptl/lifedrop-api/internal/model"
)

const (
	fcmScope           = "https://www.googleapis.com/auth/firebase.messaging"
	defaultFCMEndpoint = "https://fcm.googleapis.com"
)

type PushConfig struct {
	ProjectID string
	Endpoint  string
	Timeout   time.Duration
}

// Push sends through the FCM HTTP v1 API.
type Push struct {
	client    *resty.Client
	tokens    oauth2.TokenSource
	projectID string
}

// TokenSource loads service account credentials, preferring inline JSON over
// a file path.
func TokenSource(ctx context.Context, credentialsJSON, credentialsFile string) (oauth2.TokenSource, error) {
	raw := []byte(credentialsJSON)
	if len(raw) == 0 {
		if credentialsFile == "" {
			return nil, fmt.Errorf("no push credentials configured")
		}
		b, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read push credentials: %w", err)
		}
		raw = b
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse push credentials: %w", err)
	}
	return creds.TokenSource, nil
}

func NewPush(cfg PushConfig, tokens oauth2.TokenSource) *Push {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultFCMEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})

	return &Push{client: client, tokens: tokens, projectID: cfg.ProjectID}
}

func (p *Push) Name() string { return NamePush }

type fcmRequest struct {
	Message fcmMessage `json:"message"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroid       `json:"android,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmAndroid struct {
	Priority string `json:"priority"`
}

type fcmError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (p *Push) Send(ctx context.Context, recipient *model.User, n *model.Notification) error {
	if recipient.FCMToken == "" || !recipient.NotificationPreferences.Push {
		return ErrSkipped
	}

	token, err := p.tokens.Token()
	if err != nil {
		return fmt.Errorf("failed to get push token: %w", err)
	}

	msg := fcmMessage{
		Token:        recipient.FCMToken,
		Notification: fcmNotification{Title: n.Title, Body: n.Message},
		Data:         pushData(n),
	}
	if n.Priority == model.PriorityHigh || n.Priority == model.PriorityCritical {
		msg.Android = &fcmAndroid{Priority: "high"}
	}

	var failure fcmError
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token.AccessToken).
		SetBody(fcmRequest{Message: msg}).
		SetError(&failure).
		Post(fmt.Sprintf("/v1/projects/%s/messages:send", p.projectID))
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	if resp.IsError() {
		if failure.Error.Status != "" {
			return fmt.Errorf("push rejected: %s %s", failure.Error.Status, failure.Error.Message)
		}
		return fmt.Errorf("push rejected with status %d", resp.StatusCode())
	}
	return nil
}

// pushData flattens the notification into FCM's string-only data map.
func pushData(n *model.Notification) map[string]string {
	data := map[string]string{
		"notification_id": n.ID.String(),
		"type":            string(n.Type),
		"category":        string(n.Category),
		"priority":        string(n.Priority),
	}
	if n.BloodRequestID != nil {
		data["blood_request_id"] = n.BloodRequestID.String()
	}
	if n.ActionURL != "" {
		data["action_url"] = n.ActionURL
	}
	for k, v := range n.Data {
		if _, taken := data[k]; !taken {
			data[k] = fmt.Sprint(v)
		}
	}
	return data
}
