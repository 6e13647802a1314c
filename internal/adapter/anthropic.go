package adapter

import (
	"encoding/json"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/kayz/promptforge/internal/assembly"
)

// AnthropicAdapter maps the payload onto anthropic.MessagesRequest. Leading
// system messages move into the request's System field; consecutive
// same-role messages are merged because the backend requires strict
// user/assistant alternation; temperature is clamped to the [0, 1] range
// the backend accepts. Tool invocations become tool_use blocks, tool
// results become tool_result blocks on the user side, and a preserved
// thinking signature is replayed as a thinking block ahead of the
// assistant turn's content.
type AnthropicAdapter struct{}

// Name implements Adapter.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// BuildRequest implements Adapter.
func (a *AnthropicAdapter) BuildRequest(chat []assembly.WireMessage, s GenerationSettings) (any, error) {
	var systemParts []string
	i := 0
	for ; i < len(chat); i++ {
		if chat[i].Role != assembly.RoleSystem {
			break
		}
		systemParts = append(systemParts, flattenContent(chat[i]))
	}

	var messages []anthropic.Message
	appendBlocks := func(role anthropic.ChatRole, blocks []anthropic.MessageContent) {
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, blocks...)
			return
		}
		messages = append(messages, anthropic.Message{Role: role, Content: blocks})
	}

	for _, m := range chat[i:] {
		switch {
		case m.Role == assembly.RoleTool && m.ToolCallID != "":
			// Tool results ride on the user side of the alternation.
			appendBlocks(anthropic.RoleUser, []anthropic.MessageContent{
				anthropic.NewToolResultMessageContent(m.ToolCallID, flattenContent(m), false),
			})
		case m.Role == assembly.RoleAssistant:
			appendBlocks(anthropic.RoleAssistant, assistantBlocks(m))
		default:
			appendBlocks(anthropic.RoleUser, []anthropic.MessageContent{
				anthropic.NewTextMessageContent(flattenContent(m)),
			})
		}
	}

	temp := s.Temperature
	if temp > 1 {
		temp = 1
	}
	if temp < 0 {
		temp = 0
	}

	req := anthropic.MessagesRequest{
		Model:         anthropic.Model(s.Model),
		Messages:      messages,
		MaxTokens:     s.MaxTokens,
		Temperature:   &temp,
		StopSequences: s.Stop,
		Stream:        s.Stream,
	}
	if len(systemParts) > 0 {
		req.System = strings.Join(systemParts, "\n\n")
	}
	return req, nil
}

// assistantBlocks renders one assistant message as content blocks: the
// replayed thinking signature first, then text, then tool_use blocks, the
// order the backend emitted them in.
func assistantBlocks(m assembly.WireMessage) []anthropic.MessageContent {
	var blocks []anthropic.MessageContent

	if m.Signature != "" {
		blocks = append(blocks, anthropic.MessageContent{
			Type: anthropic.MessagesContentTypeThinking,
			MessageContentThinking: &anthropic.MessageContentThinking{
				Thinking:  "",
				Signature: m.Signature,
			},
		})
	}

	if text := flattenContent(m); text != "" {
		blocks = append(blocks, anthropic.NewTextMessageContent(text))
	}

	for _, tc := range m.ToolCalls {
		input := json.RawMessage(tc.Arguments)
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		blocks = append(blocks, anthropic.MessageContent{
			Type: anthropic.MessagesContentTypeToolUse,
			MessageContentToolUse: &anthropic.MessageContentToolUse{
				ID:    tc.ID,
				Name:  tc.Name,
				Input: input,
			},
		})
	}

	if len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextMessageContent(""))
	}
	return blocks
}

// flattenContent renders a message's content as plain text; non-text parts
// keep their reference so nothing silently disappears from the request.
func flattenContent(m assembly.WireMessage) string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var parts []string
	for _, p := range m.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		} else if p.URL != "" {
			parts = append(parts, p.URL)
		}
	}
	return strings.Join(parts, "\n")
}
