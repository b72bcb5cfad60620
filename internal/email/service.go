// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Message is a rendered email ready for delivery. It is also the payload
// of queued deliveries.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Send delivers msg, giving up when ctx is done. net/smtp has no context
// support, so an abandoned send may still complete in the background.
func (s *Service) Send(ctx context.Context, msg Message) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return nil
	}

	raw := s.build(msg)
	done := make(chan error, 1)
	go func() {
		done <- s.send(s.server, s.auth, s.config.From, msg.To, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	}
}

func (s *Service) build(m Message) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	text := m.Text
	if text == "" {
		text = "Please view this email in an HTML-capable email client."
	}

	boundary := "boundary-communitydms"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", text)
	fmt.Fprintf(&msg, "\r\n")

	if m.HTML != "" {
		fmt.Fprintf(&msg, "--%s\r\n", boundary)
		fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
		fmt.Fprintf(&msg, "\r\n")
		fmt.Fprintf(&msg, "%s\r\n", m.HTML)
		fmt.Fprintf(&msg, "\r\n")
	}
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

const appName = "Community Documents"

type ApprovalRequestedData struct {
	AppName       string
	DocumentTitle string
	RequesterName string
	Priority      string
	Notes         string
	DocumentURL   string
}

type ApprovalDecisionData struct {
	AppName       string
	DocumentTitle string
	ReviewerName  string
	Decision      string
	Notes         string
	DocumentURL   string
}

// ApprovalRequestedMessage is sent to every eligible approver.
func ApprovalRequestedMessage(to []string, data ApprovalRequestedData) (Message, error) {
	data.AppName = appName
	html, err := renderTemplate(approvalRequestedTemplate, data)
	if err != nil {
		return Message{}, fmt.Errorf("render approval request template: %w", err)
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Approval requested: %s", data.DocumentTitle),
		HTML:    html,
		Text:    fmt.Sprintf("%s requested approval of %q (%s priority).\n%s", data.RequesterName, data.DocumentTitle, data.Priority, data.DocumentURL),
	}, nil
}

// ApprovalDecisionMessage is sent to the requester once a review lands.
func ApprovalDecisionMessage(to string, data ApprovalDecisionData) (Message, error) {
	data.AppName = appName
	html, err := renderTemplate(approvalDecisionTemplate, data)
	if err != nil {
		return Message{}, fmt.Errorf("render approval decision template: %w", err)
	}
	return Message{
		To:      []string{to},
		Subject: fmt.Sprintf("%s: %s", decisionLabel(data.Decision), data.DocumentTitle),
		HTML:    html,
		Text:    fmt.Sprintf("%s reviewed %q: %s.\n%s", data.ReviewerName, data.DocumentTitle, decisionLabel(data.Decision), data.Notes),
	}, nil
}

func decisionLabel(decision string) string {
	switch decision {
	case "approved":
		return "Approved"
	case "rejected":
		return "Rejected"
	case "changes_requested":
		return "Changes requested"
	}
	return decision
}

var templateFuncs = template.FuncMap{"decisionLabel": decisionLabel}

func renderTemplate(tmpl string, data any) (string, error) {
	t, err := template.New("email").Funcs(templateFuncs).Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const emailStyle = `
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #2f6f4f; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #2f6f4f; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .notes { background: #f6f6f0; padding: 12px; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }`

const approvalRequestedTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Approval requested</title>
    <style>` + emailStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>Approval requested</h2>

    <p>{{.RequesterName}} asked for review of <strong>{{.DocumentTitle}}</strong> ({{.Priority}} priority).</p>
    {{if .Notes}}<div class="notes">{{.Notes}}</div>{{end}}
    {{if .DocumentURL}}<p><a href="{{.DocumentURL}}" class="button">Review document</a></p>{{end}}

    <div class="footer">
        <p>You receive this because you can approve documents in this category.</p>
    </div>
</body>
</html>`

const approvalDecisionTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{decisionLabel .Decision}}</title>
    <style>` + emailStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2>{{decisionLabel .Decision}}: {{.DocumentTitle}}</h2>

    <p>{{.ReviewerName}} reviewed your approval request.</p>
    {{if .Notes}}<div class="notes">{{.Notes}}</div>{{end}}
    {{if .DocumentURL}}<p><a href="{{.DocumentURL}}" class="button">Open document</a></p>{{end}}
</body>
</html>`
