package assembly

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/kayz/promptforge/internal/tokenizer"
)

// Chat roles on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

var validNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ToolCall is one structured tool invocation carried by a message.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is a costed, final-form unit of content. The token count is
// computed through the injected counter at construction and recomputed on
// every mutation; it is never interpolated or reused across state changes.
type Message struct {
	Identifier string
	Role       string
	Content    string
	Parts      []tokenizer.Part
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
	Signature  string

	// Injected marks synthetic depth-injection messages.
	Injected bool

	tokens int
}

// NewMessage builds a text message and computes its token cost.
func NewMessage(ctx context.Context, counter tokenizer.Counter, identifier, role, content string) (*Message, error) {
	m := &Message{Identifier: identifier, Role: role, Content: content}
	if err := m.recount(ctx, counter); err != nil {
		return nil, err
	}
	return m, nil
}

// Tokens returns the cached token cost.
func (m *Message) Tokens() int {
	return m.tokens
}

// Empty reports whether the message carries neither content nor tool calls.
// Empty messages are not emitted into the final payload.
func (m *Message) Empty() bool {
	return m.Content == "" && len(m.Parts) == 0 && len(m.ToolCalls) == 0
}

// SetName sets the name field and recomputes the token cost, since
// name-bearing messages are costed differently by most backends.
func (m *Message) SetName(ctx context.Context, counter tokenizer.Counter, name string) error {
	if name != "" && !validNamePattern.MatchString(name) {
		return &InvalidNameError{Name: name}
	}
	m.Name = name
	return m.recount(ctx, counter)
}

// SetContent replaces the text content and recomputes the token cost.
func (m *Message) SetContent(ctx context.Context, counter tokenizer.Counter, content string) error {
	m.Content = content
	return m.recount(ctx, counter)
}

// SetToolCalls attaches tool invocations and recomputes the token cost.
func (m *Message) SetToolCalls(ctx context.Context, counter tokenizer.Counter, calls []ToolCall) error {
	m.ToolCalls = calls
	return m.recount(ctx, counter)
}

// AddPart appends a multimodal part and recomputes the token cost. A message
// with parts must not also carry plain text content; existing content is
// converted into a leading text part.
func (m *Message) AddPart(ctx context.Context, counter tokenizer.Counter, part tokenizer.Part) error {
	if len(m.Parts) == 0 && m.Content != "" {
		m.Parts = append(m.Parts, tokenizer.Part{Type: tokenizer.PartText, Text: m.Content})
		m.Content = ""
	}
	m.Parts = append(m.Parts, part)
	return m.recount(ctx, counter)
}

func (m *Message) recount(ctx context.Context, counter tokenizer.Counter) error {
	n, err := counter.Count(ctx, m.payload())
	if err != nil {
		return err
	}
	m.tokens = n
	return nil
}

func (m *Message) payload() tokenizer.Payload {
	p := tokenizer.Payload{
		Role:    m.Role,
		Content: m.Content,
		Parts:   m.Parts,
		Name:    m.Name,
	}
	if len(m.ToolCalls) > 0 {
		// Plain data; marshal cannot fail.
		p.ToolCalls, _ = json.Marshal(m.ToolCalls)
	}
	return p
}

// SanitizeName strips characters a backend cannot encode from a display
// name. The empty string is returned when nothing survives.
func SanitizeName(name string) string {
	var out []rune
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		}
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return string(out)
}
