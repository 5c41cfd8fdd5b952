package channels

import (
	"fmt"
	"time"

	"opsnotify/internal/notify"
)

// Discord embed limits.
const (
	discordTitleLimit      = 256
	discordFieldNameLimit  = 256
	discordFieldValueLimit = 1024
	discordMaxFields       = 25
)

type DiscordPayload struct {
	Username string         `json:"username,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds"`
}

func (DiscordPayload) ChannelKind() notify.ChannelKind { return notify.ChannelDiscord }

type DiscordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Fields      []DiscordField `json:"fields"`
	Timestamp   string         `json:"timestamp"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
}

type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type DiscordFooter struct {
	Text string `json:"text"`
}

// DiscordFormatter renders a bundle as a single webhook embed.
type DiscordFormatter struct{}

func (DiscordFormatter) Format(b notify.ContentBundle, cfg notify.ChannelConfig) (notify.Payload, error) {
	deco := cfg.Options.Decoration

	title := fmt.Sprintf("`%s` %s", severityGlyph(b.Severity), b.Title)
	if deco {
		title = "> " + title
	}

	fields := make([]DiscordField, 0, min(len(b.Fields), discordMaxFields))
	for _, f := range b.Fields {
		if len(fields) == discordMaxFields {
			break
		}
		name := f.Label
		if deco {
			name = fmt.Sprintf("`%s` %s", fieldGlyph(f.Kind), f.Label)
		}
		fields = append(fields, DiscordField{
			Name:   clip(name, discordFieldNameLimit),
			Value:  clip(discordValue(f), discordFieldValueLimit),
			Inline: f.Inline,
		})
	}

	return DiscordPayload{Embeds: []DiscordEmbed{{
		Title:       clip(title, discordTitleLimit),
		Description: b.Summary,
		Color:       b.Color,
		Fields:      fields,
		Timestamp:   b.OccurredAt.UTC().Format(time.RFC3339),
		Footer:      &DiscordFooter{Text: footer(b.Instance)},
	}}}, nil
}

// discordValue renders timestamps as <t:unix:style> so clients show local time.
func discordValue(f notify.Field) string {
	switch f.Kind {
	case notify.FieldDate:
		if !f.At.IsZero() {
			return fmt.Sprintf("<t:%d:D>", f.At.Unix())
		}
	case notify.FieldTime:
		if !f.At.IsZero() {
			return fmt.Sprintf("<t:%d:t>", f.At.Unix())
		}
	case notify.FieldLink:
		return fmt.Sprintf("[%s](%s)", f.Label, f.Value)
	case notify.FieldError:
		return "```\n" + clip(f.Value, discordFieldValueLimit-8) + "\n```"
	}
	return f.Value
}
