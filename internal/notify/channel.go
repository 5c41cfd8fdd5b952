package notify

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

type ChannelKind string

const (
	ChannelEmail    ChannelKind = "email"
	ChannelDiscord  ChannelKind = "discord"
	ChannelTelegram ChannelKind = "telegram"
	ChannelSlack    ChannelKind = "slack"
)

func (k ChannelKind) String() string { return string(k) }

// ParseChannelKind accepts the kind names case-insensitively.
func ParseChannelKind(s string) (ChannelKind, error) {
	switch k := ChannelKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ChannelEmail, ChannelDiscord, ChannelTelegram, ChannelSlack:
		return k, nil
	default:
		return "", fmt.Errorf("unknown channel kind %q", s)
	}
}

// PresentationOptions tweak rendering per destination. Fields that do not
// apply to a kind are ignored by its formatter.
type PresentationOptions struct {
	// Decoration prefixes Discord titles and field labels with glyphs.
	Decoration bool `json:"decoration,omitempty"`
	// SlackChannel overrides the webhook's default channel.
	SlackChannel string `json:"slack_channel,omitempty"`
	// ThreadID targets a Telegram forum topic.
	ThreadID int `json:"thread_id,omitempty"`
	// DisablePreview turns off Telegram link previews.
	DisablePreview bool `json:"disable_preview,omitempty"`
}

// ChannelConfig is one destination and the event kinds it wants.
//
// Destination depends on Kind: webhook URL (Discord, Slack), chat id
// (Telegram) or comma-separated recipients (Email).
type ChannelConfig struct {
	ID            string              `json:"id"`
	Name          string              `json:"name,omitempty"`
	Kind          ChannelKind         `json:"kind"`
	EnabledEvents []EventKind         `json:"enabled_events"`
	Destination   string              `json:"destination"`
	Options       PresentationOptions `json:"options"`
}

// Subscribed reports whether kind is in EnabledEvents.
func (c ChannelConfig) Subscribed(kind EventKind) bool {
	return slices.Contains(c.EnabledEvents, kind)
}

func (c ChannelConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, errors.New("channel id is required"))
	}
	if _, err := ParseChannelKind(string(c.Kind)); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Destination) == "" {
		errs = append(errs, errors.New("channel destination is required"))
	}
	return errors.Join(errs...)
}
