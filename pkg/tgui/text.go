package tgui

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageText is Telegram's limit for one message, in runes.
const MaxMessageText = 4096

// TruncRunes returns s cut to at most n runes, ending in "…" when cut.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n-1]) + "…"
}

// Split breaks an HTML message into chunks of at most limit runes. It prefers
// newlines in the last two thirds of a window and never cuts inside a tag or
// an entity. Elements left open at a cut are closed at the end of the chunk
// and reopened at the start of the next, so every chunk is valid markup.
func Split(s string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageText
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, len(rs)/limit+1)
	var carried []openTag
	start := 0
	for start < len(rs) {
		prefix := openers(carried)
		room := max(1, limit-utf8.RuneCountInString(prefix))
		end := min(start+room, len(rs))

		var stack []openTag
		for {
			if end < len(rs) {
				end = cutPoint(rs, start, end, room)
			}
			stack = tagStack(carried, rs[start:end])
			over := utf8.RuneCountInString(prefix) + (end - start) + utf8.RuneCountInString(closers(stack)) - limit
			if over <= 0 || end-start <= over {
				break
			}
			end -= over
		}

		body := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, prefix+body+closers(stack))
		carried = stack
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}

// cutPoint moves end back to a newline when one is near, then off any tag or
// entity that would be cut in half.
func cutPoint(rs []rune, start, end, room int) int {
	for i := end - 1; i-start >= room/3; i-- {
		if rs[i] == '\n' {
			end = i + 1
			break
		}
	}
	if open := danglingTag(rs[start:end]); open > 0 {
		end = start + open
	}
	if amp := danglingEntity(rs[start:end]); amp > 0 {
		end = start + amp
	}
	return end
}

type openTag struct {
	name string
	raw  string
}

// tagStack returns the elements still open after rs, starting from open.
func tagStack(open []openTag, rs []rune) []openTag {
	stack := append([]openTag(nil), open...)
	for i := 0; i < len(rs); i++ {
		if rs[i] != '<' {
			continue
		}
		j := i + 1
		for j < len(rs) && rs[j] != '>' {
			j++
		}
		if j == len(rs) {
			break
		}
		inner := strings.TrimSpace(string(rs[i+1 : j]))
		switch {
		case strings.HasPrefix(inner, "/"):
			name := tagName(inner[1:])
			for k := len(stack) - 1; k >= 0; k-- {
				if stack[k].name == name {
					stack = append(stack[:k], stack[k+1:]...)
					break
				}
			}
		case inner != "" && !strings.HasSuffix(inner, "/"):
			stack = append(stack, openTag{name: tagName(inner), raw: string(rs[i : j+1])})
		}
		i = j
	}
	return stack
}

func tagName(inner string) string {
	f := strings.Fields(inner)
	if len(f) == 0 {
		return ""
	}
	return strings.ToLower(f[0])
}

func openers(stack []openTag) string {
	var b strings.Builder
	for _, t := range stack {
		b.WriteString(t.raw)
	}
	return b.String()
}

func closers(stack []openTag) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteString("</" + stack[i].name + ">")
	}
	return b.String()
}

// danglingTag returns the offset of a '<' that is not closed inside rs, or -1.
func danglingTag(rs []rune) int {
	open, closed := -1, -1
	for i, r := range rs {
		switch r {
		case '<':
			open = i
		case '>':
			closed = i
		}
	}
	if open > closed {
		return open
	}
	return -1
}

// danglingEntity returns the offset of an '&' whose entity runs past rs, or -1.
func danglingEntity(rs []rune) int {
	for i := len(rs) - 1; i >= 0 && len(rs)-i <= 10; i-- {
		switch rs[i] {
		case ';', ' ', '\n', '<', '>':
			return -1
		case '&':
			return i
		}
	}
	return -1
}
