package transform

import (
	"context"
	"strings"

	"revoltgram/internal/domain"
)

// Resolver looks up display names on the source platform. A false result
// leaves the reference untouched.
type Resolver interface {
	UserName(ctx context.Context, id string) (string, bool)
	ChannelName(ctx context.Context, id string) (string, bool)
}

// Transform replaces mention references in text with readable names.
//
// When escaped is true the text has already been through EscapeMarkup and
// is going to be sent as MarkdownV2: channel names are then written as
// \#name. Substituted names are never escaped themselves.
func Transform(ctx context.Context, res Resolver, text string, escaped bool) string {
	if text == "" {
		return text
	}
	refs := Scan(text)
	if len(refs) == 0 {
		return text
	}

	// One lookup per distinct reference within this message.
	type key struct {
		kind domain.MentionKind
		id   string
	}
	resolved := make(map[key]string, len(refs))
	failed := make(map[key]bool)

	var sb strings.Builder
	sb.Grow(len(text))
	last := 0
	for _, ref := range refs {
		sb.WriteString(text[last:ref.Start])
		last = ref.End

		k := key{ref.Kind, ref.ID}
		name, ok := resolved[k]
		if !ok && !failed[k] {
			name, ok = lookup(ctx, res, ref)
			if ok {
				resolved[k] = name
			} else {
				failed[k] = true
			}
		}
		if !ok {
			sb.WriteString(text[ref.Start:ref.End])
			continue
		}
		sb.WriteString(Render(ref.Kind, name, escaped))
	}
	sb.WriteString(text[last:])
	return sb.String()
}

func lookup(ctx context.Context, res Resolver, ref domain.MentionReference) (string, bool) {
	var (
		name string
		ok   bool
	)
	switch ref.Kind {
	case domain.MentionUser:
		name, ok = res.UserName(ctx, ref.ID)
	case domain.MentionChannel:
		name, ok = res.ChannelName(ctx, ref.ID)
	}
	return name, ok && name != ""
}

// Render formats a resolved reference. User names are wrapped as @<name>
// so they never collide with Telegram @username mentions.
func Render(kind domain.MentionKind, name string, escaped bool) string {
	if kind == domain.MentionUser {
		return "@<" + name + ">"
	}
	if escaped {
		return `\#` + name
	}
	return "#" + name
}
