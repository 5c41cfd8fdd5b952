package channels

import (
	"fmt"

	"opsnotify/internal/notify"
)

type SlackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Attachments []SlackAttachment `json:"attachments"`
}

func (SlackPayload) ChannelKind() notify.ChannelKind { return notify.ChannelSlack }

type SlackAttachment struct {
	Fallback string       `json:"fallback"`
	Color    string       `json:"color"`
	Pretext  string       `json:"pretext"`
	Text     string       `json:"text,omitempty"`
	Fields   []SlackField `json:"fields"`
	Footer   string       `json:"footer,omitempty"`
	Ts       int64        `json:"ts"`
}

type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// SlackFormatter renders a bundle as one legacy attachment. The body lives in
// attachments[].fields; there is no top-level text.
type SlackFormatter struct{}

func (SlackFormatter) Format(b notify.ContentBundle, cfg notify.ChannelConfig) (notify.Payload, error) {
	fields := make([]SlackField, 0, len(b.Fields))
	for _, f := range b.Fields {
		fields = append(fields, SlackField{Title: f.Label, Value: slackValue(f), Short: f.Inline})
	}
	return SlackPayload{
		Channel: cfg.Options.SlackChannel,
		Attachments: []SlackAttachment{{
			Fallback: b.Title,
			Color:    slackColor(b.Severity),
			Pretext:  fmt.Sprintf("%s *%s*", slackEmoji(b.Severity), b.Title),
			Text:     b.Summary,
			Fields:   fields,
			Footer:   footer(b.Instance),
			Ts:       b.OccurredAt.Unix(),
		}},
	}, nil
}

func slackColor(s notify.Severity) string {
	switch s {
	case notify.SeveritySuccess:
		return "#00FF00"
	case notify.SeverityWarning:
		return "#FFA500"
	case notify.SeverityError:
		return "#FF0000"
	default:
		return "#439FE0"
	}
}

func slackEmoji(s notify.Severity) string {
	switch s {
	case notify.SeveritySuccess:
		return ":white_check_mark:"
	case notify.SeverityWarning:
		return ":warning:"
	case notify.SeverityError:
		return ":x:"
	default:
		return ":information_source:"
	}
}

// slackValue uses <!date^...> tokens so clients render local time, falling
// back to the composed text.
func slackValue(f notify.Field) string {
	switch f.Kind {
	case notify.FieldDate:
		if !f.At.IsZero() {
			return fmt.Sprintf("<!date^%d^{date_short}|%s>", f.At.Unix(), f.Value)
		}
	case notify.FieldTime:
		if !f.At.IsZero() {
			return fmt.Sprintf("<!date^%d^{time_secs}|%s>", f.At.Unix(), f.Value)
		}
	case notify.FieldLink:
		return fmt.Sprintf("<%s|%s>", f.Value, f.Label)
	case notify.FieldError:
		return "```" + f.Value + "```"
	}
	return f.Value
}
