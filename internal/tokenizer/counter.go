package tokenizer

import "context"

// PartType identifies one multimodal content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartVideo PartType = "video"
	PartAudio PartType = "audio"
)

// Part is one typed content part of a multimodal payload.
type Part struct {
	Type PartType `json:"type"`
	Text string   `json:"text,omitempty"`
	URL  string   `json:"url,omitempty"`
}

// Payload mirrors the wire shape of a chat message for counting purposes.
// Either Content or Parts is set, never both.
type Payload struct {
	Role      string `json:"role"`
	Content   string `json:"content,omitempty"`
	Parts     []Part `json:"parts,omitempty"`
	Name      string `json:"name,omitempty"`
	ToolCalls []byte `json:"tool_calls,omitempty"`
}

// Counter returns the token cost of a message-shaped payload.
// Implementations must be deterministic for identical input and safe for
// concurrent use; the backend they model decides the actual numbers.
type Counter interface {
	Count(ctx context.Context, p Payload) (int, error)
}
