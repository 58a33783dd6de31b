// Package media classifies attachments and arranges them into the batches
// accepted by the Telegram media-group API.
package media

import (
	"mime"
	"path"
	"strings"
	"unicode/utf16"

	"revoltgram/internal/domain"
)

const (
	// MaxGroupSize is the largest batch Telegram accepts in one sendMediaGroup.
	MaxGroupSize = 10
	// MaxCaptionLen is Telegram's caption limit in UTF-16 code units.
	MaxCaptionLen = 1024
)

// CaptionFits reports whether caption is within MaxCaptionLen.
func CaptionFits(caption string) bool {
	if len(caption) <= MaxCaptionLen {
		return true
	}
	return len(utf16.Encode([]rune(caption))) <= MaxCaptionLen
}

// Classify maps a MIME type to a MediaKind. Anything that is not an image
// or video, including the empty string, is a document.
func Classify(mimeType string) domain.MediaKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.MediaPhoto
	case strings.HasPrefix(mimeType, "video/"):
		return domain.MediaVideo
	default:
		return domain.MediaDocument
	}
}

// FromAttachments turns source attachments into classified outbound media,
// keeping their order.
func FromAttachments(atts []domain.Attachment) []domain.OutboundMedia {
	out := make([]domain.OutboundMedia, 0, len(atts))
	for _, a := range atts {
		out = append(out, domain.OutboundMedia{
			URL:      a.URL,
			MimeType: a.MimeType,
			Kind:     Classify(a.MimeType),
		})
	}
	return out
}

// Partition splits items into photos/videos and documents, preserving the
// relative order inside each group. Telegram rejects batches that mix the
// two.
func Partition(items []domain.OutboundMedia) (visual, documents []domain.OutboundMedia) {
	for _, it := range items {
		if it.Kind == domain.MediaDocument {
			documents = append(documents, it)
		} else {
			visual = append(visual, it)
		}
	}
	return visual, documents
}

// PlaceCaption puts caption on the first visual item, or on the first
// document when there are no visual items. It returns false when caption is
// non-empty but both groups are empty; the caller must then send the
// caption as a plain text message.
func PlaceCaption(visual, documents []domain.OutboundMedia, caption string) bool {
	if caption == "" {
		return true
	}
	switch {
	case len(visual) > 0:
		visual[0].Caption = caption
	case len(documents) > 0:
		documents[0].Caption = caption
	default:
		return false
	}
	return true
}

// Chunk splits group into consecutive batches of at most size items.
func Chunk(group []domain.OutboundMedia, size int) [][]domain.OutboundMedia {
	if size <= 0 {
		size = MaxGroupSize
	}
	var batches [][]domain.OutboundMedia
	for len(group) > 0 {
		n := min(size, len(group))
		batches = append(batches, group[:n])
		group = group[n:]
	}
	return batches
}

// extraTypes covers file types Telegram commonly serves that are missing
// from Go's builtin table on hosts without a mime.types file.
var extraTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".tgs":  "application/x-tgsticker",
	".zip":  "application/zip",
	".txt":  "text/plain",
}

// TypeByFilename infers a MIME type from the file extension, falling back
// to application/octet-stream.
func TypeByFilename(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return "application/octet-stream"
	}
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	// Host tables may add parameters such as "; charset=utf-8".
	if t, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil {
		return t
	}
	return "application/octet-stream"
}
