package prompt

// Role is the chat role a prompt renders as.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Position controls how a prompt is placed during assembly.
type Position string

const (
	// PositionRelative places the prompt in the fixed instructional slot
	// dictated by collection order, or adjacent to a named anchor.
	PositionRelative Position = "relative"
	// PositionAbsolute injects the prompt into the conversation history at
	// a specific depth from the newest turn.
	PositionAbsolute Position = "absolute"
)

// Default injection order reserved for built-in extension content.
const DefaultOrder = 100

// Identifiers of the statically known system-prompt slots.
const (
	IDMain               = "main"
	IDJailbreak          = "jailbreak"
	IDNSFW               = "nsfw"
	IDEnhanceDefinitions = "enhanceDefinitions"
	IDWorldInfoBefore    = "worldInfoBefore"
	IDWorldInfoAfter     = "worldInfoAfter"
	IDCharDescription    = "charDescription"
	IDCharPersonality    = "charPersonality"
	IDScenario           = "scenario"
	IDPersonaDescription = "personaDescription"
	IDImpersonate        = "impersonate"
	IDQuietPrompt        = "quietPrompt"
	IDGroupNudge         = "groupNudge"
	IDBias               = "bias"
)

// Identifiers of the relative extension slots anchored next to main.
const (
	IDSummary         = "summary"
	IDAuthorsNote     = "authorsNote"
	IDVectorsMemory   = "vectorsMemory"
	IDVectorsDataBank = "vectorsDataBank"
	IDSmartContext    = "smartContext"
)

// Marker identifiers naming the regions filled by the greedy passes.
const (
	IDChatHistory      = "chatHistory"
	IDDialogueExamples = "dialogueExamples"
)

// ExtensionIdentifiers lists the relative extension slots in anchor order.
var ExtensionIdentifiers = []string{
	IDSummary,
	IDAuthorsNote,
	IDVectorsMemory,
	IDVectorsDataBank,
	IDSmartContext,
}

// Prompt is a draft, pre-costed unit of content. Prompts are created fresh
// per generation request and discarded after one assembly pass.
type Prompt struct {
	Identifier string   `yaml:"identifier" json:"identifier"`
	Role       Role     `yaml:"role" json:"role"`
	Content    string   `yaml:"content" json:"content"`
	Position   Position `yaml:"position" json:"position"`
	Depth      int      `yaml:"depth" json:"depth"`
	Order      int      `yaml:"order" json:"order"`

	// Marker prompts carry no content of their own; they name a region
	// (chat history, dialogue examples) filled in a later pass.
	Marker bool `yaml:"marker,omitempty" json:"marker,omitempty"`

	// ForbidOverride blocks per-character content overrides.
	ForbidOverride bool `yaml:"forbid_override,omitempty" json:"forbid_override,omitempty"`
}

// Empty reports whether the prompt carries no content and is not a marker.
// Empty prompts are excluded from assembly.
func (p *Prompt) Empty() bool {
	return !p.Marker && p.Content == ""
}

// Absolute reports whether the prompt is depth-injected.
func (p *Prompt) Absolute() bool {
	return p.Position == PositionAbsolute
}

// Clone returns a copy of the prompt.
func (p *Prompt) Clone() *Prompt {
	cp := *p
	return &cp
}
