package tgui

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncRunes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 6, "hello…"},
		{"héllo wörld", 4, "hél…"},
		{"x", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestSplitShortMessage(t *testing.T) {
	t.Parallel()

	got := Split("<b>hi</b>", 100)
	if len(got) != 1 || got[0] != "<b>hi</b>" {
		t.Fatalf("Split = %q, want one chunk", got)
	}
}

func TestSplitPrefersNewlines(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("a", 30)
	msg := strings.Join([]string{line, line, line, line}, "\n")
	chunks := Split(msg, 70)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want >= 2", len(chunks))
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 70 {
			t.Fatalf("chunk %d has %d runes", i, utf8.RuneCountInString(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d = %q, want trimmed newlines", i, c)
		}
	}
	if strings.Join(chunks, "\n") != msg {
		t.Fatalf("rejoined chunks differ from input")
	}
}

func TestSplitDoesNotCutTags(t *testing.T) {
	t.Parallel()

	msg := strings.Repeat("x", 18) + "<b>bold</b>"
	chunks := Split(msg, 20)
	if chunks[0] != strings.Repeat("x", 18) {
		t.Fatalf("first chunk = %q, want text before the tag", chunks[0])
	}
	if !strings.HasPrefix(chunks[1], "<b>") {
		t.Fatalf("second chunk = %q, want it to start with the tag", chunks[1])
	}
}

func TestLineEscapes(t *testing.T) {
	t.Parallel()

	got := Line("Error", I("a < b")).String()
	want := "<b>Error:</b> <i>a &lt; b</i>"
	if got != want {
		t.Fatalf("Line = %q, want %q", got, want)
	}
}

func TestKeyboard(t *testing.T) {
	t.Parallel()

	if Keyboard(nil, 2) != nil {
		t.Fatalf("Keyboard(nil) != nil")
	}
	rm := Keyboard([]URLButton{{Text: "a", URL: "https://a"}, {Text: "b", URL: "https://b"}, {Text: "c", URL: "https://c"}}, 2)
	if len(rm.InlineKeyboard) != 2 || len(rm.InlineKeyboard[0]) != 2 || len(rm.InlineKeyboard[1]) != 1 {
		t.Fatalf("InlineKeyboard = %+v, want rows of 2 and 1", rm.InlineKeyboard)
	}
	if rm.InlineKeyboard[1][0].URL != "https://c" {
		t.Fatalf("third button url = %q", rm.InlineKeyboard[1][0].URL)
	}
}

func TestSplitReopensElementsAcrossChunks(t *testing.T) {
	t.Parallel()

	msg := "<b>" + strings.Repeat("word ", 20) + "</b>"
	chunks := Split(msg, 30)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want >= 2", len(chunks))
	}
	var text strings.Builder
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 30 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		if !strings.HasPrefix(c, "<b>") || !strings.HasSuffix(c, "</b>") {
			t.Fatalf("chunk %d = %q, want it wrapped in <b>", i, c)
		}
		text.WriteString(strings.TrimSuffix(strings.TrimPrefix(c, "<b>"), "</b>"))
	}
	if text.String() != strings.Repeat("word ", 20) {
		t.Fatalf("rejoined text = %q", text.String())
	}
}

func TestSplitLongItalicValue(t *testing.T) {
	t.Parallel()

	lines := make([]string, 150)
	for i := range lines {
		lines[i] = "step " + strings.Repeat("x", 40) + " failed: a < b"
	}
	msg := JoinH("\n\n", B("Build Failed"), Line("Error", I(strings.Join(lines, "\n")))).String()
	chunks := Split(msg, MaxMessageText)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want >= 2", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > MaxMessageText {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		for _, tag := range []string{"b", "i"} {
			if o, cl := strings.Count(c, "<"+tag+">"), strings.Count(c, "</"+tag+">"); o != cl {
				t.Fatalf("chunk %d: <%s>=%d </%s>=%d", i, tag, o, tag, cl)
			}
		}
		if strings.Contains(c, "&lt") && strings.Count(c, "&lt") != strings.Count(c, "&lt;") {
			t.Fatalf("chunk %d cuts an entity", i)
		}
	}
	if !strings.HasPrefix(chunks[1], "<i>") {
		t.Fatalf("second chunk = %.40q, want it to reopen <i>", chunks[1])
	}
}
