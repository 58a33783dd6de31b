// Package transform rewrites Revolt message text for display on Telegram:
// inline mentions become readable names and MarkdownV2 control characters
// are escaped.
package transform

import (
	"revoltgram/internal/domain"
)

// idLength is the length of a Revolt ULID.
const idLength = 26

// Scan returns the user (<@ID>) and channel (<#ID>) references in text, in
// order of appearance. IDs are 26 characters of the Crockford base32
// alphabet, matched case-insensitively.
func Scan(text string) []domain.MentionReference {
	var refs []domain.MentionReference
	for i := 0; i+idLength+3 <= len(text); i++ {
		if text[i] != '<' {
			continue
		}
		var kind domain.MentionKind
		switch text[i+1] {
		case '@':
			kind = domain.MentionUser
		case '#':
			kind = domain.MentionChannel
		default:
			continue
		}
		end := i + 2 + idLength
		if text[end] != '>' || !isULID(text[i+2:end]) {
			continue
		}
		refs = append(refs, domain.MentionReference{
			Kind:  kind,
			ID:    text[i+2 : end],
			Start: i,
			End:   end + 1,
		})
		i = end
	}
	return refs
}

func isULID(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isCrockford(s[i]) {
			return false
		}
	}
	return true
}

// isCrockford reports whether c is in 0-9A-Z minus I, L, O and U, either case.
func isCrockford(c byte) bool {
	if c >= '0' && c <= '9' {
		return true
	}
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return false
	}
	switch c {
	case 'I', 'L', 'O', 'U':
		return false
	}
	return true
}
