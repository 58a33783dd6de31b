package domain

// Platform identifies one side of a bridge.
type Platform string

const (
	PlatformTelegram Platform = "telegram"
	PlatformRevolt   Platform = "revolt"
)

// InboundMessage is a platform-agnostic view of a message received on
// either side. It lives for the duration of one relay.
type InboundMessage struct {
	Platform    Platform
	ChannelID   string
	AuthorID    string
	AuthorName  string // display name, used for masquerading on Revolt
	Text        string
	Attachments []Attachment
}

// Attachment describes a media object on the source platform.
// URL is only set when the source platform serves files from a stable
// address (Revolt); Telegram attachments are fetched by ID.
type Attachment struct {
	ID       string
	Filename string
	MimeType string
	URL      string
}

// MediaKind classifies an attachment for the Telegram batch-send API.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// OutboundMedia is a single item of an outbound media batch.
type OutboundMedia struct {
	URL      string
	MimeType string
	Kind     MediaKind
	Caption  string
}

// OutboundPayload is what a relay hands to the destination adapter.
type OutboundPayload struct {
	Text  string
	Media []OutboundMedia
}

// MentionKind distinguishes user and channel references.
type MentionKind string

const (
	MentionUser    MentionKind = "user"
	MentionChannel MentionKind = "channel"
)

// MentionReference is an inline reference found in message text.
// Start and End are byte offsets of the whole token, delimiters included.
type MentionReference struct {
	Kind  MentionKind
	ID    string
	Start int
	End   int
}
