package transform

import (
	"context"
	"strings"
	"testing"
)

// FuzzTransform checks that arbitrary text never panics and that text
// without references comes back unchanged.
func FuzzTransform(f *testing.F) {
	f.Add("hello", false)
	f.Add("<@"+userID+">", true)
	f.Add("<#"+channelID+"><#", false)
	f.Add("<<@@##>>", true)
	f.Add(string([]byte{0x00, '<', '@'}), false)

	f.Fuzz(func(t *testing.T, text string, escaped bool) {
		got := Transform(context.Background(), newResolver(), text, escaped)
		if len(Scan(text)) == 0 && got != text {
			t.Errorf("text without references changed: %q -> %q", text, got)
		}
	})
}

// FuzzEscapeMarkup checks that escaping only ever inserts backslashes.
func FuzzEscapeMarkup(f *testing.F) {
	f.Add("a_b-c~d`e.f*g")
	f.Add("")
	f.Add(`\\`)

	f.Fuzz(func(t *testing.T, text string) {
		got := EscapeMarkup(text)
		if strings.ReplaceAll(got, `\`, "") != strings.ReplaceAll(text, `\`, "") {
			t.Errorf("escaping altered non-backslash characters: %q -> %q", text, got)
		}
	})
}
