package channels

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"opsnotify/internal/notify"
)

// Email template ids.
const (
	TemplateServerRestarted = "server-restarted"
	TemplateGeneric         = "generic"
)

// EmailPayload carries what the template renderer needs. The document itself
// is rendered by the transport.
type EmailPayload struct {
	Subject    string               `json:"subject"`
	TemplateID string               `json:"template_id"`
	Data       notify.ContentBundle `json:"data"`
}

func (EmailPayload) ChannelKind() notify.ChannelKind { return notify.ChannelEmail }

type EmailFormatter struct{}

func (EmailFormatter) Format(b notify.ContentBundle, _ notify.ChannelConfig) (notify.Payload, error) {
	tpl := TemplateGeneric
	if b.Kind == notify.EventServerRestarted {
		tpl = TemplateServerRestarted
	}
	return EmailPayload{Subject: b.Title, TemplateID: tpl, Data: b}, nil
}

// Renderer renders a named HTML template.
type Renderer interface {
	Render(ctx context.Context, templateID string, data any) (string, error)
}

// Mail is one rendered message.
type Mail struct {
	To      []string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// EmailTransport renders the payload's template and hands the document to a
// Mailer. The destination is a comma-separated recipient list.
type EmailTransport struct {
	renderer Renderer
	mailer   Mailer
}

func NewEmailTransport(r Renderer, m Mailer) *EmailTransport {
	return &EmailTransport{renderer: r, mailer: m}
}

func (t *EmailTransport) Send(ctx context.Context, destination string, p notify.Payload) error {
	ep, ok := p.(EmailPayload)
	if !ok {
		return wrongPayload(notify.ChannelEmail, p)
	}
	to := ParseRecipients(destination)
	if len(to) == 0 {
		return &notify.TransportError{Channel: notify.ChannelEmail, Err: errors.New("no recipients")}
	}

	html, err := t.renderer.Render(ctx, ep.TemplateID, ep.Data)
	if err != nil {
		var re *notify.RenderError
		if errors.As(err, &re) {
			return err
		}
		return &notify.RenderError{TemplateID: ep.TemplateID, Err: err}
	}

	if err := t.mailer.Send(ctx, Mail{To: to, Subject: ep.Subject, HTML: html}); err != nil {
		var te *notify.TransportError
		if errors.As(err, &te) {
			return err
		}
		return &notify.TransportError{Channel: notify.ChannelEmail, Err: fmt.Errorf("send mail: %w", err)}
	}
	return nil
}

// ParseRecipients splits a comma or semicolon separated list, dropping blanks
// and duplicates.
func ParseRecipients(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := strings.ToLower(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
