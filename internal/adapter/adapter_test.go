package adapter

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/kayz/promptforge/internal/assembly"
	"github.com/kayz/promptforge/internal/tokenizer"
)

func TestForModel(t *testing.T) {
	if ForModel("claude-sonnet-4-20250514").Name() != "anthropic" {
		t.Fatal("claude models should pick the anthropic adapter")
	}
	if ForModel("gpt-4o").Name() != "openai" {
		t.Fatal("gpt models should pick the openai adapter")
	}
	if ForModel("o1-mini").Name() != "openai" {
		t.Fatal("reasoning models should pick the openai adapter")
	}
}

func TestOpenAIRequestMapping(t *testing.T) {
	chat := []assembly.WireMessage{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "hi", Name: "Alice"},
		{Role: "assistant", ToolCalls: []assembly.ToolCall{
			{ID: "c1", Name: "weather", Arguments: json.RawMessage(`{"city":"Oslo"}`)},
		}},
		{Role: "tool", Content: `{"temp":3}`, ToolCallID: "c1"},
	}
	settings := GenerationSettings{
		Model:       "gpt-4o",
		Temperature: 0.7,
		MaxTokens:   512,
		Stop:        []string{"\nUser:"},
	}

	body, err := (&OpenAIAdapter{}).BuildRequest(chat, settings)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req, ok := body.(openai.ChatCompletionRequest)
	if !ok {
		t.Fatalf("unexpected body type %T", body)
	}

	if req.Model != "gpt-4o" || req.MaxTokens != 512 || req.Temperature != 0.7 {
		t.Fatalf("settings lost: %+v", req)
	}
	if len(req.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(req.Messages))
	}
	if req.Messages[1].Name != "Alice" {
		t.Fatalf("speaker name lost: %+v", req.Messages[1])
	}
	tc := req.Messages[2].ToolCalls
	if len(tc) != 1 || tc[0].ID != "c1" || tc[0].Function.Name != "weather" || tc[0].Function.Arguments != `{"city":"Oslo"}` {
		t.Fatalf("tool call corrupted: %+v", tc)
	}
	if req.Messages[3].ToolCallID != "c1" {
		t.Fatalf("tool result lost its call id: %+v", req.Messages[3])
	}
}

func TestOpenAIReasoningModelQuirks(t *testing.T) {
	chat := []assembly.WireMessage{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "hi"},
	}
	settings := GenerationSettings{Model: "o1-preview", Temperature: 0.9, MaxTokens: 256}

	body, err := (&OpenAIAdapter{}).BuildRequest(chat, settings)
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req := body.(openai.ChatCompletionRequest)

	if req.Messages[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("system role should downgrade to user, got %q", req.Messages[0].Role)
	}
	if req.MaxTokens != 0 || req.MaxCompletionTokens != 256 {
		t.Fatalf("reasoning models take max_completion_tokens: %+v", req)
	}
	if req.Temperature != 0 {
		t.Fatalf("reasoning models take no sampling params, got temperature %v", req.Temperature)
	}
}

func TestOpenAIMultiContentParts(t *testing.T) {
	chat := []assembly.WireMessage{
		{Role: "user", Parts: []tokenizer.Part{
			{Type: tokenizer.PartText, Text: "what is this?"},
			{Type: tokenizer.PartImage, URL: "https://example.com/a.png"},
		}},
	}
	body, err := (&OpenAIAdapter{}).BuildRequest(chat, GenerationSettings{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req := body.(openai.ChatCompletionRequest)

	mc := req.Messages[0].MultiContent
	if len(mc) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(mc))
	}
	if mc[0].Type != openai.ChatMessagePartTypeText || mc[0].Text != "what is this?" {
		t.Fatalf("text part corrupted: %+v", mc[0])
	}
	if mc[1].Type != openai.ChatMessagePartTypeImageURL || mc[1].ImageURL.URL != "https://example.com/a.png" {
		t.Fatalf("image part corrupted: %+v", mc[1])
	}

	// Parts the backend cannot carry must fail loudly, not drop silently.
	chat = []assembly.WireMessage{
		{Role: "user", Parts: []tokenizer.Part{{Type: tokenizer.PartVideo, URL: "https://example.com/a.mp4"}}},
	}
	if _, err := (&OpenAIAdapter{}).BuildRequest(chat, GenerationSettings{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected error for video part")
	}
}

func TestAnthropicSystemExtractionAndMerge(t *testing.T) {
	chat := []assembly.WireMessage{
		{Role: "system", Content: "rules"},
		{Role: "system", Content: "more rules"},
		{Role: "user", Content: "hi"},
		{Role: "system", Content: "mid-chat note"},
		{Role: "user", Content: "still here"},
		{Role: "assistant", Content: "hello"},
	}
	body, err := (&AnthropicAdapter{}).BuildRequest(chat, GenerationSettings{Model: "claude-sonnet-4-20250514", MaxTokens: 512})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req, ok := body.(anthropic.MessagesRequest)
	if !ok {
		t.Fatalf("unexpected body type %T", body)
	}

	if req.System != "rules\n\nmore rules" {
		t.Fatalf("leading system messages should join into System, got %q", req.System)
	}

	// Mid-chat system content folds into the user stream, and the strict
	// alternation merge collapses the run into one user message.
	if len(req.Messages) != 2 {
		t.Fatalf("expected 2 alternating messages, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != anthropic.RoleUser || len(req.Messages[0].Content) != 3 {
		t.Fatalf("user run not merged: %+v", req.Messages[0])
	}
	if req.Messages[1].Role != anthropic.RoleAssistant {
		t.Fatalf("assistant turn lost: %+v", req.Messages[1])
	}
}

func TestAnthropicTemperatureClamp(t *testing.T) {
	chat := []assembly.WireMessage{{Role: "user", Content: "hi"}}

	body, err := (&AnthropicAdapter{}).BuildRequest(chat, GenerationSettings{Model: "claude-sonnet-4-20250514", Temperature: 1.8})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req := body.(anthropic.MessagesRequest)
	if req.Temperature == nil || *req.Temperature != 1 {
		t.Fatalf("temperature should clamp to 1, got %v", req.Temperature)
	}

	body, err = (&AnthropicAdapter{}).BuildRequest(chat, GenerationSettings{Model: "claude-sonnet-4-20250514", Temperature: -0.5})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req = body.(anthropic.MessagesRequest)
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Fatalf("temperature should clamp to 0, got %v", req.Temperature)
	}
}

func TestAnthropicToolBlocksAndSignature(t *testing.T) {
	chat := []assembly.WireMessage{
		{Role: "user", Content: "weather?"},
		{Role: "assistant", Signature: "sig-abc", ToolCalls: []assembly.ToolCall{
			{ID: "c1", Name: "weather", Arguments: json.RawMessage(`{"city":"Oslo"}`)},
		}},
		{Role: "tool", Content: `{"temp":3}`, ToolCallID: "c1"},
		{Role: "assistant", Content: "It is 3 degrees."},
	}
	body, err := (&AnthropicAdapter{}).BuildRequest(chat, GenerationSettings{Model: "claude-sonnet-4-20250514", MaxTokens: 512})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req := body.(anthropic.MessagesRequest)

	if len(req.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d: %+v", len(req.Messages), req.Messages)
	}

	// Assistant tool-call turn: thinking signature replayed first, then the
	// tool_use block.
	call := req.Messages[1]
	if call.Role != anthropic.RoleAssistant || len(call.Content) != 2 {
		t.Fatalf("tool-call turn corrupted: %+v", call)
	}
	if call.Content[0].Type != anthropic.MessagesContentTypeThinking {
		t.Fatalf("expected a thinking block first, got %+v", call.Content[0])
	}
	if call.Content[0].MessageContentThinking == nil || call.Content[0].MessageContentThinking.Signature != "sig-abc" {
		t.Fatalf("thinking signature lost: %+v", call.Content[0])
	}
	if call.Content[1].Type != anthropic.MessagesContentTypeToolUse {
		t.Fatalf("expected a tool_use block, got %+v", call.Content[1])
	}
	tu := call.Content[1].MessageContentToolUse
	if tu == nil || tu.ID != "c1" || tu.Name != "weather" || string(tu.Input) != `{"city":"Oslo"}` {
		t.Fatalf("tool_use block corrupted: %+v", tu)
	}

	// Tool result rides on the user side as a tool_result block.
	result := req.Messages[2]
	if result.Role != anthropic.RoleUser || len(result.Content) != 1 {
		t.Fatalf("tool-result turn corrupted: %+v", result)
	}
	want := anthropic.NewToolResultMessageContent("c1", `{"temp":3}`, false)
	if !reflect.DeepEqual(result.Content[0], want) {
		t.Fatalf("tool_result block = %+v, want %+v", result.Content[0], want)
	}

	final := req.Messages[3]
	if final.Role != anthropic.RoleAssistant || final.Content[0].GetText() != "It is 3 degrees." {
		t.Fatalf("final assistant turn corrupted: %+v", final)
	}
}

func TestAnthropicEmptyToolCallArguments(t *testing.T) {
	chat := []assembly.WireMessage{
		{Role: "user", Content: "go"},
		{Role: "assistant", ToolCalls: []assembly.ToolCall{{ID: "c1", Name: "ping"}}},
	}
	body, err := (&AnthropicAdapter{}).BuildRequest(chat, GenerationSettings{Model: "claude-sonnet-4-20250514"})
	if err != nil {
		t.Fatalf("BuildRequest: %v", err)
	}
	req := body.(anthropic.MessagesRequest)

	tu := req.Messages[1].Content[0].MessageContentToolUse
	if tu == nil || string(tu.Input) != `{}` {
		t.Fatalf("argument-less tool call should carry an empty object, got %+v", tu)
	}
}
