// Package notify emails applicants when staff decide on their registration.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"gopkg.in/gomail.v2"

	"ncc/internal/events"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Name    string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", gm.FormatAddress(m.from, "NCC Registration"))
	gm.SetHeader("To", gm.FormatAddress(msg.To, msg.Name))
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)
	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

// LogMailer logs messages instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email not sent, no SMTP relay configured",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// Handler turns decision events into emails.
type Handler struct {
	mailer    Mailer
	logger    *slog.Logger
	eventName string
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithEventName sets the event name used in subjects and bodies.
func WithEventName(name string) Option {
	return func(h *Handler) {
		h.eventName = name
	}
}

func NewHandler(mailer Mailer, opts ...Option) (*Handler, error) {
	if mailer == nil {
		return nil, errors.New("mailer is required")
	}
	h := &Handler{mailer: mailer, logger: slog.Default(), eventName: "NCC"}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle sends the email for a decision. Events without a template, such as
// a return to pending, are ignored.
func (h *Handler) Handle(ctx context.Context, event events.Event) error {
	tmpl, ok := templates[templateKey{event.Type, event.To}]
	if !ok {
		return nil
	}
	if event.Email == "" {
		h.logger.WarnContext(ctx, "decision event without recipient",
			"event_id", event.ID,
			"registration_id", event.RegistrationID,
		)
		return nil
	}

	var body bytes.Buffer
	data := templateData{
		Name:           event.Name,
		EventName:      h.eventName,
		RegistrationID: string(event.RegistrationID),
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return fmt.Errorf("render %s email: %w", event.To, err)
	}
	msg := Message{
		To:      event.Email,
		Name:    event.Name,
		Subject: fmt.Sprintf(tmpl.subject, h.eventName),
		HTML:    body.String(),
	}
	if err := h.mailer.Send(ctx, msg); err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "decision email sent",
		"event_id", event.ID,
		"type", event.Type,
		"to_status", event.To,
		"registration_id", event.RegistrationID,
	)
	return nil
}

type templateKey struct {
	eventType events.Type
	to        string
}

type templateData struct {
	Name           string
	EventName      string
	RegistrationID string
}

type mailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333333;">
<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
{{block "content" .}}{{end}}
<p>Registration number: <strong>{{.RegistrationID}}</strong></p>
<p>The {{.EventName}} team</p>
</body></html>`

func mustTemplate(content string) *template.Template {
	t := template.Must(template.New("layout").Parse(layout))
	template.Must(t.New("content").Parse(content))
	return t
}

var templates = map[templateKey]mailTemplate{
	{events.TypeStatusDecided, "approved"}: {
		subject: "Welcome to %s",
		body:    mustTemplate(`<p>Your registration for {{.EventName}} has been approved. Welcome aboard!</p>`),
	},
	{events.TypeStatusDecided, "rejected"}: {
		subject: "Your %s registration",
		body:    mustTemplate(`<p>We were unable to approve your registration for {{.EventName}}. Please review your details and documents, then submit again.</p>`),
	},
	{events.TypePaymentDecided, "approved"}: {
		subject: "%s payment confirmed",
		body:    mustTemplate(`<p>We have verified your registration payment for {{.EventName}}.</p>`),
	},
	{events.TypePaymentDecided, "rejected"}: {
		subject: "%s payment could not be verified",
		body:    mustTemplate(`<p>We could not verify your payment for {{.EventName}}. Please upload a clear payment screenshot and submit again.</p>`),
	},
}
