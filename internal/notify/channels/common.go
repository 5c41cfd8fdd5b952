package channels

import (
	"fmt"
	"unicode/utf8"

	"opsnotify/internal/notify"
)

func severityGlyph(s notify.Severity) string {
	switch s {
	case notify.SeveritySuccess:
		return "✅"
	case notify.SeverityWarning:
		return "⚠️"
	case notify.SeverityError:
		return "❌"
	default:
		return "ℹ️"
	}
}

func fieldGlyph(k notify.FieldKind) string {
	switch k {
	case notify.FieldDate:
		return "📅"
	case notify.FieldTime:
		return "⌚"
	case notify.FieldStatus:
		return "❓"
	case notify.FieldLink:
		return "🧷"
	case notify.FieldError:
		return "⚠️"
	default:
		return "📋"
	}
}

// clip cuts s to n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n-1]) + "…"
}

func footer(instance string) string {
	if instance == "" {
		return "Notification"
	}
	return fmt.Sprintf("`%s` Notification", instance)
}

func wrongPayload(want notify.ChannelKind, p notify.Payload) error {
	if p == nil {
		return fmt.Errorf("nil payload for %s transport", want)
	}
	return fmt.Errorf("%s transport got %s payload (%T)", want, p.ChannelKind(), p)
}
