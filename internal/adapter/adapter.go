// Package adapter maps the assembled message payload onto provider-specific
// request bodies. Provider quirks live here, behind one interface per
// backend family, so the budgeted assembly core stays free of provider
// conditionals.
package adapter

import (
	"strings"

	"github.com/kayz/promptforge/internal/assembly"
)

// GenerationSettings is the provider-independent sampling configuration.
type GenerationSettings struct {
	Model            string
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	MaxTokens        int
	Stop             []string
	Stream           bool
}

// Adapter builds one backend family's request body from the final payload.
type Adapter interface {
	Name() string
	BuildRequest(chat []assembly.WireMessage, settings GenerationSettings) (any, error)
}

// ForModel picks the adapter for a model name.
func ForModel(model string) Adapter {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "claude") {
		return &AnthropicAdapter{}
	}
	return &OpenAIAdapter{}
}
