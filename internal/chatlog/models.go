package chatlog

import (
	"encoding/json"
	"time"
)

// Conversation identifies one persisted chat.
type Conversation struct {
	ID        int64
	Platform  string
	ChannelID string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one persisted message of a conversation, in chronological order.
type Turn struct {
	ID         int64
	Role       string // "system" | "user" | "assistant" | "tool"
	Name       string
	Content    string
	Media      []string
	ToolCalls  []ToolCall
	ToolCallID string

	// Signature is the opaque thinking signature some backends attach to
	// assistant turns and require replayed verbatim on later requests.
	Signature string

	CreatedAt time.Time
}

// ToolCall is one structured tool invocation recorded on an assistant turn.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// HasToolCalls reports whether the turn initiates tool invocations.
func (t Turn) HasToolCalls() bool {
	return len(t.ToolCalls) > 0
}

// IsToolResult reports whether the turn is a tool invocation result.
func (t Turn) IsToolResult() bool {
	return t.Role == "tool" && t.ToolCallID != ""
}
