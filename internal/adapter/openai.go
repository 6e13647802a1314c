package adapter

import (
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/kayz/promptforge/internal/assembly"
	"github.com/kayz/promptforge/internal/tokenizer"
)

// OpenAIAdapter maps the payload onto openai.ChatCompletionRequest.
type OpenAIAdapter struct{}

// Name implements Adapter.
func (a *OpenAIAdapter) Name() string { return "openai" }

// BuildRequest implements Adapter. Reasoning-family models (o1, o3) take no
// sampling parameters and no system role; those quirks are resolved here.
func (a *OpenAIAdapter) BuildRequest(chat []assembly.WireMessage, s GenerationSettings) (any, error) {
	reasoning := isReasoningModel(s.Model)

	messages := make([]openai.ChatCompletionMessage, 0, len(chat))
	for _, m := range chat {
		converted, err := openAIMessage(m)
		if err != nil {
			return nil, err
		}
		if reasoning && converted.Role == openai.ChatMessageRoleSystem {
			converted.Role = openai.ChatMessageRoleUser
		}
		messages = append(messages, converted)
	}

	req := openai.ChatCompletionRequest{
		Model:    s.Model,
		Messages: messages,
		Stream:   s.Stream,
		Stop:     s.Stop,
	}
	if reasoning {
		req.MaxCompletionTokens = s.MaxTokens
	} else {
		req.MaxTokens = s.MaxTokens
		req.Temperature = s.Temperature
		req.TopP = s.TopP
		req.FrequencyPenalty = s.FrequencyPenalty
		req.PresencePenalty = s.PresencePenalty
	}
	return req, nil
}

func openAIMessage(m assembly.WireMessage) (openai.ChatCompletionMessage, error) {
	out := openai.ChatCompletionMessage{
		Role:       m.Role,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}

	if len(m.Parts) > 0 {
		for _, p := range m.Parts {
			switch p.Type {
			case tokenizer.PartText:
				out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			case tokenizer.PartImage:
				out.MultiContent = append(out.MultiContent, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: p.URL},
				})
			default:
				return out, fmt.Errorf("openai backend cannot carry %q content parts", p.Type)
			}
		}
	} else {
		out.Content = m.Content
	}

	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: string(tc.Arguments),
			},
		})
	}
	return out, nil
}

func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3")
}
