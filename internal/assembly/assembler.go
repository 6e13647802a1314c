package assembly

import (
	"context"
	"fmt"

	"github.com/kayz/promptforge/internal/chatlog"
	"github.com/kayz/promptforge/internal/logger"
	"github.com/kayz/promptforge/internal/prompt"
	"github.com/kayz/promptforge/internal/tokenizer"
)

// Kind is the generation request type.
type Kind string

const (
	KindNormal      Kind = "normal"
	KindImpersonate Kind = "impersonate"
	KindQuiet       Kind = "quiet"
	KindContinue    Kind = "continue"
)

// Request carries everything one assembly pass consumes. The assembler owns
// the prompt collection for the duration of the pass; the turn slice is only
// read.
type Request struct {
	Kind    Kind
	Prompts *prompt.Collection

	// Turns is the persisted conversation, oldest first.
	Turns []chatlog.Turn
	// Examples holds dialogue example blocks, each oldest first.
	Examples [][]chatlog.Turn

	// Group enables the group-nudge structural marker.
	Group bool

	// ContinuePrefill keeps the continuation target in place instead of
	// extracting it into a dedicated control message.
	ContinuePrefill bool
	// PrefillText is prepended to the extracted continuation target.
	PrefillText string
}

// Report summarizes one assembly pass for logging and auditing.
type Report struct {
	ContextSize      int
	ReservedResponse int
	InitialBudget    int
	RemainingBudget  int
	Messages         int
	HistoryInserted  int
	HistoryDropped   int
	ExamplesInserted int
	ExamplesDropped  int
	Squashed         bool
}

// Assembler turns a merged prompt collection plus a conversation log into
// the final wire payload. One Assembler value is reusable across requests;
// each Assemble call builds its own ledger.
type Assembler struct {
	counter tokenizer.Counter
	cfg     Config
}

// NewAssembler returns an assembler using counter and cfg.
func NewAssembler(counter tokenizer.Counter, cfg Config) *Assembler {
	return &Assembler{counter: counter, cfg: cfg.withDefaults()}
}

var leadIdentifiers = []string{
	prompt.IDWorldInfoBefore,
	prompt.IDMain,
	prompt.IDWorldInfoAfter,
	prompt.IDCharDescription,
	prompt.IDCharPersonality,
	prompt.IDScenario,
	prompt.IDPersonaDescription,
}

// Assemble runs the full pass. On error the partially built ledger is
// discarded; callers must not retry with the same request state mutated.
func (asm *Assembler) Assemble(ctx context.Context, req Request) ([]WireMessage, *Report, error) {
	ledger := New(asm.counter)
	ledger.SetTokenBudget(asm.cfg.ContextSize, asm.cfg.ReservedResponse)

	report := &Report{
		ContextSize:      asm.cfg.ContextSize,
		ReservedResponse: asm.cfg.ReservedResponse,
		InitialBudget:    ledger.Budget(),
	}

	// Backend framing overhead.
	ledger.ReserveBudget(TokenCount(asm.cfg.FramingOverhead))

	if err := asm.placeLeadPrompts(ctx, ledger, req.Prompts); err != nil {
		return nil, nil, fmt.Errorf("lead prompts: %w", err)
	}

	control, err := asm.buildControlPrompts(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("control prompts: %w", err)
	}
	ledger.ReserveBudget(control)

	if err := asm.placeRelativePrompts(ctx, ledger, req.Prompts); err != nil {
		return nil, nil, fmt.Errorf("relative prompts: %w", err)
	}

	absolutes := collectAbsolutes(req.Prompts)
	absolutes, err = asm.anchorExtensionPrompts(ctx, ledger, req.Prompts, absolutes)
	if err != nil {
		return nil, nil, fmt.Errorf("extension prompts: %w", err)
	}

	turns, continueMsg, err := asm.extractContinueTarget(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("continue target: %w", err)
	}
	if continueMsg != nil {
		ledger.ReserveBudget(continueMsg)
	}

	entries, err := injectPrompts(ctx, asm.counter, turns, absolutes)
	if err != nil {
		return nil, nil, fmt.Errorf("depth injection: %w", err)
	}

	if asm.cfg.PinExamples {
		if err := asm.populateDialogueExamples(ctx, ledger, req, report); err != nil {
			return nil, nil, fmt.Errorf("dialogue examples: %w", err)
		}
		if err := asm.populateChatHistory(ctx, ledger, req, entries, report); err != nil {
			return nil, nil, fmt.Errorf("chat history: %w", err)
		}
	} else {
		if err := asm.populateChatHistory(ctx, ledger, req, entries, report); err != nil {
			return nil, nil, fmt.Errorf("chat history: %w", err)
		}
		if err := asm.populateDialogueExamples(ctx, ledger, req, report); err != nil {
			return nil, nil, fmt.Errorf("dialogue examples: %w", err)
		}
	}

	// Release the control reservation and place the real messages now that
	// negotiable content has claimed its share.
	ledger.FreeBudget(control)
	if control.Len() > 0 {
		if err := ledger.Add(control, End); err != nil {
			return nil, nil, fmt.Errorf("control prompts: %w", err)
		}
	}
	if continueMsg != nil {
		ledger.FreeBudget(continueMsg)
		if err := ledger.Insert(continueMsg, prompt.IDChatHistory, End); err != nil {
			return nil, nil, fmt.Errorf("continue target: %w", err)
		}
	}

	if asm.cfg.Squash {
		if err := ledger.SquashSystemMessages(ctx); err != nil {
			return nil, nil, fmt.Errorf("squash system messages: %w", err)
		}
		report.Squashed = true
	}

	chat := ledger.Chat()
	report.RemainingBudget = ledger.Budget()
	report.Messages = len(chat)
	logger.Debug("assembled %d messages, %d tokens remaining (history %d kept / %d dropped, examples %d kept / %d dropped)",
		report.Messages, report.RemainingBudget, report.HistoryInserted, report.HistoryDropped,
		report.ExamplesInserted, report.ExamplesDropped)
	return chat, report, nil
}

// placeLeadPrompts adds the fixed instructional prompts in the order the
// merged collection dictates.
func (asm *Assembler) placeLeadPrompts(ctx context.Context, ledger *ChatAssembly, prompts *prompt.Collection) error {
	lead := make(map[string]bool, len(leadIdentifiers))
	for _, id := range leadIdentifiers {
		lead[id] = true
	}
	for _, p := range prompts.All() {
		if !lead[p.Identifier] || p.Empty() || p.Absolute() {
			continue
		}
		msg, err := asm.messageFromPrompt(ctx, p)
		if err != nil {
			return err
		}
		if err := ledger.Add(NewCollectionWith(p.Identifier, msg), End); err != nil {
			return err
		}
	}
	return nil
}

// buildControlPrompts gathers the prompts whose budget is pre-reserved so
// greedy insertion can never starve them.
func (asm *Assembler) buildControlPrompts(ctx context.Context, req Request) (*MessageCollection, error) {
	control := NewCollection("controlPrompts")

	if req.Kind == KindImpersonate {
		if p := req.Prompts.Get(prompt.IDImpersonate); p != nil && !p.Empty() {
			msg, err := asm.messageFromPrompt(ctx, p)
			if err != nil {
				return nil, err
			}
			control.InsertMessage(msg, End)
		}
	}
	if p := req.Prompts.Get(prompt.IDQuietPrompt); p != nil && !p.Empty() {
		msg, err := asm.messageFromPrompt(ctx, p)
		if err != nil {
			return nil, err
		}
		control.InsertMessage(msg, End)
	}
	return control, nil
}

// placeRelativePrompts adds the remaining relative prompts in natural
// collection order, registering the marker regions along the way.
func (asm *Assembler) placeRelativePrompts(ctx context.Context, ledger *ChatAssembly, prompts *prompt.Collection) error {
	skip := make(map[string]bool, len(leadIdentifiers)+len(prompt.ExtensionIdentifiers)+3)
	for _, id := range leadIdentifiers {
		skip[id] = true
	}
	for _, id := range prompt.ExtensionIdentifiers {
		skip[id] = true
	}
	skip[prompt.IDImpersonate] = true
	skip[prompt.IDQuietPrompt] = true
	skip[prompt.IDGroupNudge] = true

	for _, p := range prompts.All() {
		if skip[p.Identifier] || p.Absolute() {
			continue
		}
		if p.Marker {
			if p.Identifier == prompt.IDChatHistory || p.Identifier == prompt.IDDialogueExamples {
				if err := ledger.Add(NewCollection(p.Identifier), End); err != nil {
					return err
				}
			}
			continue
		}
		if p.Empty() {
			continue
		}
		msg, err := asm.messageFromPrompt(ctx, p)
		if err != nil {
			return err
		}
		if err := ledger.Add(NewCollectionWith(p.Identifier, msg), End); err != nil {
			return err
		}
	}

	// The greedy passes need their regions even when the configured order
	// omits the markers.
	if !ledger.Has(prompt.IDDialogueExamples) {
		if err := ledger.Add(NewCollection(prompt.IDDialogueExamples), End); err != nil {
			return err
		}
	}
	if !ledger.Has(prompt.IDChatHistory) {
		if err := ledger.Add(NewCollection(prompt.IDChatHistory), End); err != nil {
			return err
		}
	}
	return nil
}

// anchorExtensionPrompts splices relative extension content next to main's
// placed collection, or promotes it into the absolute injection list when
// main itself is depth-injected.
func (asm *Assembler) anchorExtensionPrompts(ctx context.Context, ledger *ChatAssembly, prompts *prompt.Collection, absolutes []*prompt.Prompt) ([]*prompt.Prompt, error) {
	spliced := 0
	for _, id := range prompt.ExtensionIdentifiers {
		p := prompts.Get(id)
		if p == nil || p.Empty() || p.Absolute() {
			continue
		}

		mainIdx := ledger.Root().CollectionIndex(prompt.IDMain)
		if mainIdx >= 0 {
			msg, err := asm.messageFromPrompt(ctx, p)
			if err != nil {
				return nil, err
			}
			if err := ledger.Splice(NewCollectionWith(id, msg), mainIdx+1+spliced); err != nil {
				return nil, err
			}
			spliced++
			continue
		}

		// All-absolute configuration: keep the extension anchored to
		// wherever main will be injected.
		promoted := p.Clone()
		promoted.Position = prompt.PositionAbsolute
		if mainPrompt := prompts.Get(prompt.IDMain); mainPrompt != nil {
			promoted.Role = mainPrompt.Role
			promoted.Depth = mainPrompt.Depth
			promoted.Order = mainPrompt.Order
		}
		logger.Debug("promoting extension prompt %q to absolute injection at depth %d", id, promoted.Depth)
		absolutes = append(absolutes, promoted)
	}
	return absolutes, nil
}

// extractContinueTarget pulls the message being continued out of the log so
// the greedy pass can never evict it.
func (asm *Assembler) extractContinueTarget(ctx context.Context, req Request) ([]chatlog.Turn, *Message, error) {
	turns := req.Turns
	if req.Kind != KindContinue || req.ContinuePrefill || len(turns) == 0 {
		return turns, nil, nil
	}

	last := turns[len(turns)-1]
	turns = turns[:len(turns)-1]

	content := last.Content
	if req.PrefillText != "" {
		content = req.PrefillText + content
	}
	msg, err := NewMessage(ctx, asm.counter, "continueNudge", RoleAssistant, content)
	if err != nil {
		return nil, nil, err
	}
	return turns, msg, nil
}

func (asm *Assembler) messageFromPrompt(ctx context.Context, p *prompt.Prompt) (*Message, error) {
	role := string(p.Role)
	if role == "" {
		role = RoleSystem
	}
	return NewMessage(ctx, asm.counter, p.Identifier, role, p.Content)
}

// collectAbsolutes gathers the depth-injected prompts from the merged
// collection.
func collectAbsolutes(prompts *prompt.Collection) []*prompt.Prompt {
	var out []*prompt.Prompt
	for _, p := range prompts.All() {
		if p.Absolute() && !p.Empty() {
			out = append(out, p)
		}
	}
	return out
}
