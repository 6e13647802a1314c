package assembly

import "github.com/kayz/promptforge/internal/tokenizer"

// WireMessage is one entry of the final ordered payload, ready for
// transport-layer serialization.
type WireMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	Parts      []tokenizer.Part `json:"parts,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []ToolCall       `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Signature  string           `json:"signature,omitempty"`
}

// Chat flattens the tree depth-first into the final ordered payload.
// Messages with empty content and no tool calls are omitted. Calling Chat
// twice without mutation in between yields structurally identical results.
func (a *ChatAssembly) Chat() []WireMessage {
	flat := a.root.Flatten()
	out := make([]WireMessage, 0, len(flat))
	for _, m := range flat {
		if m.Empty() {
			continue
		}
		out = append(out, WireMessage{
			Role:       m.Role,
			Content:    m.Content,
			Parts:      m.Parts,
			Name:       m.Name,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Signature:  m.Signature,
		})
	}
	return out
}
