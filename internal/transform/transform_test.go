package transform

import (
	"context"
	"strings"
	"testing"

	"revoltgram/internal/domain"
)

const (
	userID    = "01ARZ3NDEKTSV4RRFFQ69G5FAV"
	channelID = "01BX5ZZKBKACTAV9WEVGEMMVRZ"
	unknownID = "01CCCCCCCCCCCCCCCCCCCCCCCC"
)

// fakeResolver resolves IDs from fixed maps and counts lookups.
type fakeResolver struct {
	users    map[string]string
	channels map[string]string
	calls    int
}

func (f *fakeResolver) UserName(_ context.Context, id string) (string, bool) {
	f.calls++
	name, ok := f.users[id]
	return name, ok
}

func (f *fakeResolver) ChannelName(_ context.Context, id string) (string, bool) {
	f.calls++
	name, ok := f.channels[id]
	return name, ok
}

func newResolver() *fakeResolver {
	return &fakeResolver{
		users:    map[string]string{userID: "alice"},
		channels: map[string]string{channelID: "general"},
	}
}

func TestScan_FindsUserAndChannel(t *testing.T) {
	text := "hi <@" + userID + "> see <#" + channelID + ">"
	refs := Scan(text)
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}
	if refs[0].Kind != domain.MentionUser || refs[0].ID != userID {
		t.Errorf("unexpected first ref: %+v", refs[0])
	}
	if refs[1].Kind != domain.MentionChannel || refs[1].ID != channelID {
		t.Errorf("unexpected second ref: %+v", refs[1])
	}
	if got := text[refs[0].Start:refs[0].End]; got != "<@"+userID+">" {
		t.Errorf("offsets point at %q", got)
	}
}

func TestScan_RejectsMalformed(t *testing.T) {
	cases := []string{
		"<@" + userID[:25] + ">",        // too short
		"<@" + userID + "X>",            // too long
		"<@01ARZ3NDEKTSV4RRFFQ69G5FAI>", // I is not in the alphabet
		"<!" + userID + ">",             // unknown sigil
		"<@" + userID,                   // unterminated
		"@" + userID,                    // no delimiters
	}
	for _, c := range cases {
		if refs := Scan(c); len(refs) != 0 {
			t.Errorf("Scan(%q) = %v, want none", c, refs)
		}
	}
}

func TestScan_CaseInsensitive(t *testing.T) {
	refs := Scan("<@" + strings.ToLower(userID) + ">")
	if len(refs) != 1 {
		t.Fatalf("expected lowercase id to match, got %d refs", len(refs))
	}
}

func TestTransform_EmptyText(t *testing.T) {
	res := newResolver()
	for _, escaped := range []bool{true, false} {
		if got := Transform(context.Background(), res, "", escaped); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
	}
	if res.calls != 0 {
		t.Errorf("expected no lookups, got %d", res.calls)
	}
}

func TestTransform_NoReferencesUnchanged(t *testing.T) {
	text := "plain text with <b>tags</b> and @someone #tag"
	for _, escaped := range []bool{true, false} {
		if got := Transform(context.Background(), newResolver(), text, escaped); got != text {
			t.Errorf("escaped=%v: got %q", escaped, got)
		}
	}
}

func TestTransform_UserMention(t *testing.T) {
	got := Transform(context.Background(), newResolver(), "ping <@"+userID+">!", false)
	if got != "ping @<alice>!" {
		t.Errorf("got %q", got)
	}
}

func TestTransform_ChannelMention(t *testing.T) {
	text := "go to <#" + channelID + ">"
	if got := Transform(context.Background(), newResolver(), text, false); got != "go to #general" {
		t.Errorf("plain: got %q", got)
	}
	if got := Transform(context.Background(), newResolver(), text, true); got != `go to \#general` {
		t.Errorf("escaped: got %q", got)
	}
}

func TestTransform_UnresolvedLeavesToken(t *testing.T) {
	text := "who is <@" + unknownID + "> in <#" + unknownID + ">"
	if got := Transform(context.Background(), newResolver(), text, false); got != text {
		t.Errorf("expected original text, got %q", got)
	}
}

func TestTransform_EmptyNameTreatedAsFailure(t *testing.T) {
	res := &fakeResolver{users: map[string]string{userID: ""}}
	text := "<@" + userID + ">"
	if got := Transform(context.Background(), res, text, false); got != text {
		t.Errorf("expected original token, got %q", got)
	}
}

func TestTransform_RepeatedReferenceResolvedOnce(t *testing.T) {
	res := newResolver()
	text := "<@" + userID + "> and <@" + userID + "> and <@" + unknownID + "> <@" + unknownID + ">"
	got := Transform(context.Background(), res, text, false)
	want := "@<alice> and @<alice> and <@" + unknownID + "> <@" + unknownID + ">"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if res.calls != 2 {
		t.Errorf("expected 2 lookups, got %d", res.calls)
	}
}

func TestTransform_NamesAreNotEscaped(t *testing.T) {
	res := &fakeResolver{users: map[string]string{userID: "snake_case.user"}}
	text := EscapeMarkup("hi_ <@" + userID + ">")
	got := Transform(context.Background(), res, text, true)
	if got != `hi\_ @<snake_case.user>` {
		t.Errorf("got %q", got)
	}
}

func TestEscapeMarkup_NoReservedUnchanged(t *testing.T) {
	in := "Hello world! (1+1=2) #tag @user"
	if got := EscapeMarkup(in); got != in {
		t.Errorf("got %q", got)
	}
}

func TestEscapeMarkup_EachReservedOnce(t *testing.T) {
	got := EscapeMarkup("a_b-c~d`e.f*g")
	want := "a\\_b\\-c\\~d\\`e\\.f\\*g"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkup_AllOccurrences(t *testing.T) {
	got := EscapeMarkup("**bold** ... __u__")
	want := `\*\*bold\*\* \.\.\. \_\_u\_\_`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEscapeMarkup_KeepsMentionTokens(t *testing.T) {
	token := "<@" + userID + ">"
	if got := EscapeMarkup(token); got != token {
		t.Errorf("escaping must not alter mention tokens: %q", got)
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		kind    domain.MentionKind
		escaped bool
		want    string
	}{
		{domain.MentionUser, false, "@<bob>"},
		{domain.MentionUser, true, "@<bob>"},
		{domain.MentionChannel, false, "#bob"},
		{domain.MentionChannel, true, `\#bob`},
	}
	for _, tt := range tests {
		if got := Render(tt.kind, "bob", tt.escaped); got != tt.want {
			t.Errorf("Render(%s, escaped=%v) = %q, want %q", tt.kind, tt.escaped, got, tt.want)
		}
	}
}
