package transform

import "strings"

// reserved lists the characters escaped for Telegram MarkdownV2, in the
// order they are processed.
var reserved = []string{"_", "-", "~", "`", ".", "*"}

// EscapeMarkup prefixes every reserved character with a backslash. Each
// character is a literal replacement so no pass can touch another pass's
// backslashes.
func EscapeMarkup(text string) string {
	for _, c := range reserved {
		text = strings.ReplaceAll(text, c, `\`+c)
	}
	return text
}
