package channel

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/lifedrop-api/internal/model"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// AppURL prefixes relative action links.
	AppURL string
}

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Email struct {
	sender Sender
	from   string
	appURL string
	body   *template.Template
}

var emailBody = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2 style="color: {{if .Urgent}}#c62828{{else}}#333{{end}};">{{.Title}}</h2>
  <p>Hi {{.Name}},</p>
  <p>{{.Message}}</p>
  {{- if .Link}}
  <p><a href="{{.Link}}">Open in LifeDrop</a></p>
  {{- end}}
  <p style="font-size: 12px; color: #888;">You are receiving this because email notifications are enabled on your LifeDrop account.</p>
</body>
</html>`))

func NewEmail(cfg EmailConfig) *Email {
	return NewEmailWithSender(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg)
}

func NewEmailWithSender(sender Sender, cfg EmailConfig) *Email {
	return &Email{sender: sender, from: cfg.From, appURL: cfg.AppURL, body: emailBody}
}

func (e *Email) Name() string { return NameEmail }

func (e *Email) Send(ctx context.Context, recipient *model.User, n *model.Notification) error {
	if recipient.Email == "" || !recipient.NotificationPreferences.Email {
		return ErrSkipped
	}

	var body bytes.Buffer
	err := e.body.Execute(&body, map[string]interface{}{
		"Title":   n.Title,
		"Name":    recipient.FullName(),
		"Message": n.Message,
		"Link":    e.link(n.ActionURL),
		"Urgent":  n.Priority == model.PriorityCritical || n.Priority == model.PriorityHigh,
	})
	if err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", recipient.Email)
	m.SetHeader("Subject", n.Title)
	m.SetBody("text/plain", n.Message)
	m.AddAlternative("text/html", body.String())

	// gomail has no context support; the send finishes in the background if
	// ctx ends first.
	done := make(chan error, 1)
	go func() { done <- e.sender.DialAndSend(m) }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("email to %s: %w", recipient.Email, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	}
}

func (e *Email) link(actionURL string) string {
	if actionURL == "" || e.appURL == "" || actionURL[0] != '/' {
		return actionURL
	}
	return e.appURL + actionURL
}
