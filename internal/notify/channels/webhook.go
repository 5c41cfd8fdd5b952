package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"opsnotify/internal/notify"
)

// DefaultHTTPTimeout bounds one webhook request when no client is given.
const DefaultHTTPTimeout = 10 * time.Second

// WebhookTransport posts JSON payloads to Discord or Slack incoming webhooks.
// The destination is the webhook URL.
type WebhookTransport struct {
	kind   notify.ChannelKind
	client *http.Client
}

func NewWebhookTransport(kind notify.ChannelKind, client *http.Client) *WebhookTransport {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &WebhookTransport{kind: kind, client: client}
}

func (t *WebhookTransport) Send(ctx context.Context, destination string, p notify.Payload) error {
	if p == nil || p.ChannelKind() != t.kind {
		return wrongPayload(t.kind, p)
	}
	target := strings.TrimSpace(destination)
	if target == "" {
		return &notify.TransportError{Channel: t.kind, Err: errors.New("empty webhook url")}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", t.kind, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return &notify.TransportError{Channel: t.kind, Err: stripURL(err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &notify.TransportError{Channel: t.kind, Err: stripURL(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &notify.TransportError{
			Channel: t.kind,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("webhook returned %s: %s", resp.Status, strings.TrimSpace(string(snippet))),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// stripURL drops the webhook URL from client errors; it embeds the secret token.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s webhook: %w", strings.ToLower(ue.Op), ue.Err)
	}
	return err
}
