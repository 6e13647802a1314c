package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kayz/promptforge/internal/assembly"
	"github.com/kayz/promptforge/internal/prompt"
)

// Config is the on-disk configuration for the assembly engine.
type Config struct {
	ContextSize      int `yaml:"context_size"`
	ReservedResponse int `yaml:"reserved_response"`
	FramingOverhead  int `yaml:"framing_overhead,omitempty"`

	PinExamples   bool   `yaml:"pin_examples,omitempty"`
	SquashSystem  bool   `yaml:"squash_system_messages,omitempty"`
	NamesBehavior string `yaml:"names_behavior,omitempty"` // "none" | "completion"

	NewChatPrompt        string `yaml:"new_chat_prompt,omitempty"`
	NewExampleChatPrompt string `yaml:"new_example_chat_prompt,omitempty"`

	CharsPerToken float64 `yaml:"chars_per_token,omitempty"`

	ChatDB string `yaml:"chat_db,omitempty"`

	PromptOrder []PromptEntry `yaml:"prompt_order,omitempty"`

	Audit AuditConfig `yaml:"audit,omitempty"`
	Serve ServeConfig `yaml:"serve,omitempty"`
}

// PromptEntry is one user-configured prompt-order slot.
type PromptEntry struct {
	Identifier     string `yaml:"identifier"`
	Role           string `yaml:"role,omitempty"`
	Content        string `yaml:"content,omitempty"`
	Position       string `yaml:"position,omitempty"` // "relative" | "absolute"
	Depth          int    `yaml:"depth,omitempty"`
	Order          int    `yaml:"order,omitempty"`
	Marker         bool   `yaml:"marker,omitempty"`
	ForbidOverride bool   `yaml:"forbid_override,omitempty"`
}

// AuditConfig controls the JSONL assembly audit trail.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled,omitempty"`
	Dir           string `yaml:"dir,omitempty"`
	FilePrefix    string `yaml:"file_prefix,omitempty"`
	RetentionDays int    `yaml:"retention_days,omitempty"`
}

// ServeConfig controls the inspection service.
type ServeConfig struct {
	Port int `yaml:"port,omitempty"`
}

// Default returns a usable configuration for a mid-size context window.
func Default() *Config {
	return &Config{
		ContextSize:      8192,
		ReservedResponse: 1024,
		NamesBehavior:    "none",
		ChatDB:           ".promptforge.db",
		PromptOrder:      DefaultPromptOrder(),
		Audit: AuditConfig{
			Dir:           ".promptforge/audit",
			FilePrefix:    "assembly",
			RetentionDays: 7,
		},
		Serve: ServeConfig{Port: 8790},
	}
}

// DefaultPromptOrder mirrors the built-in significance order.
func DefaultPromptOrder() []PromptEntry {
	return []PromptEntry{
		{Identifier: prompt.IDMain, Role: "system"},
		{Identifier: prompt.IDWorldInfoBefore, Role: "system"},
		{Identifier: prompt.IDCharDescription, Role: "system"},
		{Identifier: prompt.IDCharPersonality, Role: "system"},
		{Identifier: prompt.IDScenario, Role: "system"},
		{Identifier: prompt.IDWorldInfoAfter, Role: "system"},
		{Identifier: prompt.IDPersonaDescription, Role: "system"},
		{Identifier: prompt.IDEnhanceDefinitions, Role: "system"},
		{Identifier: prompt.IDNSFW, Role: "system"},
		{Identifier: prompt.IDDialogueExamples, Marker: true},
		{Identifier: prompt.IDChatHistory, Marker: true},
		{Identifier: prompt.IDJailbreak, Role: "system"},
	}
}

// Load reads a YAML configuration file, filling defaults for absent values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ContextSize <= 0 {
		return fmt.Errorf("context_size must be positive, got %d", c.ContextSize)
	}
	if c.ReservedResponse < 0 {
		return fmt.Errorf("reserved_response must not be negative, got %d", c.ReservedResponse)
	}
	if c.ReservedResponse >= c.ContextSize {
		return fmt.Errorf("reserved_response %d leaves no room in context_size %d", c.ReservedResponse, c.ContextSize)
	}
	switch c.NamesBehavior {
	case "", "none", "completion":
	default:
		return fmt.Errorf("unknown names_behavior %q", c.NamesBehavior)
	}
	return nil
}

// Assembly converts the file configuration into the immutable value the
// assembler consumes.
func (c *Config) Assembly() assembly.Config {
	return assembly.Config{
		ContextSize:          c.ContextSize,
		ReservedResponse:     c.ReservedResponse,
		FramingOverhead:      c.FramingOverhead,
		PinExamples:          c.PinExamples,
		Squash:               c.SquashSystem,
		Names:                assembly.NamesBehavior(c.NamesBehavior),
		NewChatPrompt:        c.NewChatPrompt,
		NewExampleChatPrompt: c.NewExampleChatPrompt,
	}
}

// PromptCollection converts the configured prompt order into a collection.
func (c *Config) PromptCollection() *prompt.Collection {
	col := prompt.NewCollection()
	for _, e := range c.PromptOrder {
		position := prompt.Position(e.Position)
		if position == "" {
			position = prompt.PositionRelative
		}
		role := prompt.Role(e.Role)
		if role == "" {
			role = prompt.RoleSystem
		}
		col.Add(&prompt.Prompt{
			Identifier:     e.Identifier,
			Role:           role,
			Content:        e.Content,
			Position:       position,
			Depth:          e.Depth,
			Order:          e.Order,
			Marker:         e.Marker,
			ForbidOverride: e.ForbidOverride,
		})
	}
	return col
}
