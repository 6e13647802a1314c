package assembly

// NamesBehavior controls whether speaker names are attached to history
// messages.
type NamesBehavior string

const (
	NamesNone       NamesBehavior = "none"
	NamesCompletion NamesBehavior = "completion"
)

// Config is the immutable per-request assembly configuration. Callers build
// one value up front and pass it in; nothing in the engine reads shared
// mutable settings.
type Config struct {
	// ContextSize is the hard upper bound on total prompt tokens.
	ContextSize int
	// ReservedResponse is withheld from the context for the reply.
	ReservedResponse int
	// FramingOverhead is a small fixed allowance for backend framing.
	FramingOverhead int

	// PinExamples gives dialogue examples budget priority over history.
	PinExamples bool
	// Squash merges consecutive system messages as a final pass.
	Squash bool
	// Names controls speaker-name attachment on history messages.
	Names NamesBehavior

	// NewChatPrompt is the structural marker opening the live chat.
	NewChatPrompt string
	// NewExampleChatPrompt is the structural marker opening each example.
	NewExampleChatPrompt string
}

const (
	defaultFramingOverhead      = 3
	defaultNewChatPrompt        = "[Start a new Chat]"
	defaultNewExampleChatPrompt = "[Example Chat]"
)

func (c Config) withDefaults() Config {
	if c.FramingOverhead <= 0 {
		c.FramingOverhead = defaultFramingOverhead
	}
	if c.NewChatPrompt == "" {
		c.NewChatPrompt = defaultNewChatPrompt
	}
	if c.NewExampleChatPrompt == "" {
		c.NewExampleChatPrompt = defaultNewExampleChatPrompt
	}
	if c.Names == "" {
		c.Names = NamesNone
	}
	return c
}
