// Package inference is the remote chat-completion client shared by every
// in-flight persona call.
package inference

import "context"

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Content part types.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// ContentPart is one element of a multimodal user message.
type ContentPart struct {
	Type     string
	Text     string
	ImageURL string
}

// TextPart returns a text content part.
func TextPart(s string) ContentPart { return ContentPart{Type: PartText, Text: s} }

// ImagePart returns an image content part referencing a URL or data URI.
func ImagePart(url string) ContentPart { return ContentPart{Type: PartImageURL, ImageURL: url} }

// Message is one chat message. When Parts is non-empty it is sent as a
// multimodal part array and Content is ignored.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// Request is a single chat completion.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Client issues chat completions. Implementations must be safe for
// concurrent use; one client serves every call in a batch.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
