package channels

import (
	"net/http"

	"opsnotify/internal/notify"
)

type Transports struct {
	// HTTP is shared by the Discord and Slack webhooks.
	HTTP *http.Client
	// Telegram and Email are optional; nil leaves the kind unregistered and
	// its channels fail as unsupported.
	Telegram *TelegramTransport
	Email    *EmailTransport
}

// Register binds every available channel kind into reg.
func Register(reg *notify.Registry, t Transports) {
	reg.Register(notify.ChannelDiscord, DiscordFormatter{}, NewWebhookTransport(notify.ChannelDiscord, t.HTTP))
	reg.Register(notify.ChannelSlack, SlackFormatter{}, NewWebhookTransport(notify.ChannelSlack, t.HTTP))
	if t.Telegram != nil {
		reg.Register(notify.ChannelTelegram, TelegramFormatter{}, t.Telegram)
	}
	if t.Email != nil {
		reg.Register(notify.ChannelEmail, EmailFormatter{}, t.Email)
	}
}
