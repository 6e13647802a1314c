package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kayz/promptforge/internal/chatlog"
	"github.com/kayz/promptforge/internal/prompt"
)

// CharacterCard carries the per-character data one assembly pass consumes.
type CharacterCard struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Personality string `yaml:"personality,omitempty"`
	Scenario    string `yaml:"scenario,omitempty"`

	// Persona describes the user-side persona.
	Persona string `yaml:"persona,omitempty"`

	// MainOverride and JailbreakOverride replace the configured content of
	// the two overridable prompts, unless those forbid it.
	MainOverride      string `yaml:"main_override,omitempty"`
	JailbreakOverride string `yaml:"jailbreak_override,omitempty"`

	// DisabledPrompts lists prompt identifiers this character opts out of.
	DisabledPrompts []string `yaml:"disabled_prompts,omitempty"`

	// Examples holds few-shot dialogue blocks.
	Examples []ExampleDialogue `yaml:"examples,omitempty"`
}

// ExampleDialogue is one few-shot dialogue block.
type ExampleDialogue struct {
	Turns []ExampleTurn `yaml:"turns"`
}

// ExampleTurn is one line of an example dialogue.
type ExampleTurn struct {
	Role    string `yaml:"role"`
	Content string `yaml:"content"`
}

// LoadCharacter reads a character card from a YAML file.
func LoadCharacter(path string) (*CharacterCard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read character card: %w", err)
	}
	var card CharacterCard
	if err := yaml.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("parse character card: %w", err)
	}
	if card.Name == "" {
		return nil, fmt.Errorf("character card %s has no name", path)
	}
	return &card, nil
}

// SlotPrompts renders the card into the freshly computed slot prompts for
// one request. Empty slots are included so the merge can still inherit
// user-configured placement; the assembler drops them later.
func (c *CharacterCard) SlotPrompts() []*prompt.Prompt {
	slot := func(id, content string) *prompt.Prompt {
		return &prompt.Prompt{
			Identifier: id,
			Role:       prompt.RoleSystem,
			Content:    content,
			Position:   prompt.PositionRelative,
		}
	}
	return []*prompt.Prompt{
		slot(prompt.IDCharDescription, c.Description),
		slot(prompt.IDCharPersonality, c.Personality),
		slot(prompt.IDScenario, c.Scenario),
		slot(prompt.IDPersonaDescription, c.Persona),
	}
}

// Overrides returns the per-character content overrides.
func (c *CharacterCard) Overrides() map[string]prompt.CharacterOverride {
	out := make(map[string]prompt.CharacterOverride)
	if c.MainOverride != "" {
		out[prompt.IDMain] = prompt.CharacterOverride{Content: c.MainOverride}
	}
	if c.JailbreakOverride != "" {
		out[prompt.IDJailbreak] = prompt.CharacterOverride{Content: c.JailbreakOverride}
	}
	return out
}

// Disabled returns the disabled-prompt set.
func (c *CharacterCard) Disabled() map[string]bool {
	out := make(map[string]bool, len(c.DisabledPrompts))
	for _, id := range c.DisabledPrompts {
		out[id] = true
	}
	return out
}

// ExampleBlocks converts the card's dialogues into assembler input.
func (c *CharacterCard) ExampleBlocks() [][]chatlog.Turn {
	blocks := make([][]chatlog.Turn, 0, len(c.Examples))
	for _, d := range c.Examples {
		block := make([]chatlog.Turn, 0, len(d.Turns))
		for _, t := range d.Turns {
			block = append(block, chatlog.Turn{Role: t.Role, Content: t.Content})
		}
		blocks = append(blocks, block)
	}
	return blocks
}
