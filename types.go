package pneuma

// Message roles used in ChatRequest.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ChatRequest is the public form of one inference call.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage is one message of a ChatRequest. A multimodal user message
// carries Parts instead of Content.
type ChatMessage struct {
	Role    string
	Content string
	Parts   []ChatPart
}

// ChatPart is a text fragment or an image reference. Exactly one of Text
// and ImageURL is set; ImageURL may be a data URI.
type ChatPart struct {
	Text     string
	ImageURL string
}
