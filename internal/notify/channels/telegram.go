package channels

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"opsnotify/internal/notify"
	"opsnotify/pkg/tgui"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

type TelegramPayload struct {
	Text           string           `json:"text"`
	Buttons        []tgui.URLButton `json:"buttons,omitempty"`
	ThreadID       int              `json:"thread_id,omitempty"`
	DisablePreview bool             `json:"disable_preview,omitempty"`
}

func (TelegramPayload) ChannelKind() notify.ChannelKind { return notify.ChannelTelegram }

// TelegramFormatter renders an HTML message: bold title, optional italic
// summary, then one "Label: value" line per field in bundle order. Link fields
// become keyboard buttons.
type TelegramFormatter struct{}

func (TelegramFormatter) Format(b notify.ContentBundle, cfg notify.ChannelConfig) (notify.Payload, error) {
	lines := make([]tgui.H, 0, len(b.Fields))
	var buttons []tgui.URLButton
	for _, f := range b.Fields {
		switch f.Kind {
		case notify.FieldLink:
			buttons = append(buttons, tgui.URLButton{Text: f.Label, URL: f.Value})
		case notify.FieldError:
			lines = append(lines, tgui.Line(f.Label, tgui.I(f.Value)))
		default:
			lines = append(lines, tgui.Line(f.Label, tgui.Esc(f.Value)))
		}
	}

	var sb strings.Builder
	sb.WriteString(tgui.B(severityGlyph(b.Severity) + " " + b.Title).String())
	sb.WriteString("\n\n")
	if b.Summary != "" {
		sb.WriteString(tgui.I(b.Summary).String())
		sb.WriteString("\n\n")
	}
	sb.WriteString(tgui.JoinH("\n", lines...).String())

	return TelegramPayload{
		Text:           strings.TrimRight(sb.String(), "\n"),
		Buttons:        buttons,
		ThreadID:       cfg.Options.ThreadID,
		DisablePreview: cfg.Options.DisablePreview,
	}, nil
}

type TelegramConfig struct {
	Token string
	// APIURL overrides DefaultTelegramAPI (self-hosted Bot API server, tests).
	APIURL string
	Client *http.Client
}

// TelegramTransport sends through the Bot API with telebot. The destination
// is a chat id ("-100123") or a public channel username ("@ops").
type TelegramTransport struct {
	bot *tele.Bot
}

func NewTelegramTransport(cfg TelegramConfig) (*TelegramTransport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	api := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if api == "" {
		api = DefaultTelegramAPI
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     api,
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramTransport{bot: b}, nil
}

// Send delivers the text in as many messages as the length limit needs. The
// keyboard goes on the first message only. telebot has no context support, so
// ctx is checked between messages and the HTTP client timeout bounds each call.
func (t *TelegramTransport) Send(ctx context.Context, destination string, p notify.Payload) error {
	tp, ok := p.(TelegramPayload)
	if !ok {
		return wrongPayload(notify.ChannelTelegram, p)
	}
	to, err := recipient(destination)
	if err != nil {
		return &notify.TransportError{Channel: notify.ChannelTelegram, Err: err}
	}

	markup := tgui.Keyboard(tp.Buttons, 1)
	for i, chunk := range tgui.Split(tp.Text, tgui.MaxMessageText) {
		if err := ctx.Err(); err != nil {
			return err
		}
		opt := &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: tp.DisablePreview,
			ThreadID:              tp.ThreadID,
		}
		if i == 0 && markup != nil {
			opt.ReplyMarkup = markup
		}
		if _, err := t.bot.Send(to, chunk, opt); err != nil {
			return &notify.TransportError{Channel: notify.ChannelTelegram, Status: telegramStatus(err), Err: stripURL(err)}
		}
	}
	return nil
}

type usernameRecipient string

func (u usernameRecipient) Recipient() string { return string(u) }

func recipient(destination string) (tele.Recipient, error) {
	d := strings.TrimSpace(destination)
	if strings.HasPrefix(d, "@") && len(d) > 1 {
		return usernameRecipient(d), nil
	}
	id, err := strconv.ParseInt(d, 10, 64)
	if err != nil {
		return nil, errors.New("telegram destination must be a chat id or @username")
	}
	return &tele.Chat{ID: id}, nil
}

var telegramCodeRe = regexp.MustCompile(`\((\d{3})\)$`)

// telegramStatus extracts the Bot API error_code from a telebot error.
func telegramStatus(err error) int {
	var te *tele.Error
	if errors.As(err, &te) {
		return te.Code
	}
	if m := telegramCodeRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}
