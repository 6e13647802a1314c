package assembly

import (
	"context"
	"fmt"

	"github.com/kayz/promptforge/internal/chatlog"
	"github.com/kayz/promptforge/internal/logger"
	"github.com/kayz/promptforge/internal/prompt"
	"github.com/kayz/promptforge/internal/tokenizer"
)

// populateChatHistory fills the chat history region newest to oldest until
// the budget runs out. Turns carrying tool invocations are treated as one
// atomic unit with their results. Once one item fails to fit, no older item
// is considered, so the window is contiguous and newest-first.
//
// The new-chat marker (and the group nudge, when applicable) is structural:
// its budget is reserved before the walk and the message is inserted
// unconditionally afterward.
func (asm *Assembler) populateChatHistory(ctx context.Context, ledger *ChatAssembly, req Request, entries []historyEntry, report *Report) error {
	newChat, err := NewMessage(ctx, asm.counter, IDNewMainChat, RoleSystem, asm.cfg.NewChatPrompt)
	if err != nil {
		return err
	}
	ledger.ReserveBudget(newChat)

	var nudge *Message
	if req.Group {
		if p := req.Prompts.Get(prompt.IDGroupNudge); p != nil && !p.Empty() {
			nudge, err = asm.messageFromPrompt(ctx, p)
			if err != nil {
				return err
			}
			ledger.ReserveBudget(nudge)
		}
	}

	// Tool results encountered on the newest-first walk belong to a call
	// turn further toward the oldest end; they are buffered until their
	// call arrives and inserted with it all-or-nothing.
	var pendingResults []*Message

	inserted := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]

		if entry.injected != nil {
			ok, err := ledger.TryInsert(entry.injected, prompt.IDChatHistory, Start)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			inserted++
			continue
		}

		msg, err := asm.messageFromTurn(ctx, entry.turn, fmt.Sprintf("%s-%d", prompt.IDChatHistory, i))
		if err != nil {
			return err
		}

		if entry.turn.IsToolResult() {
			pendingResults = append([]*Message{msg}, pendingResults...)
			continue
		}

		if entry.turn.HasToolCalls() {
			block := append([]*Message{msg}, pendingResults...)
			ok, err := ledger.TryInsertAll(block, prompt.IDChatHistory, Start)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			inserted += len(block)
			pendingResults = nil
			continue
		}

		ok, err := ledger.TryInsert(msg, prompt.IDChatHistory, Start)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		inserted++
	}
	if len(pendingResults) > 0 {
		// Results whose call turn fell outside the window are dropped
		// with it; a dangling result is not a valid payload.
		logger.Debug("dropping %d tool result messages without their call turn", len(pendingResults))
	}
	report.HistoryInserted = inserted
	report.HistoryDropped = len(entries) - inserted

	ledger.FreeBudget(newChat)
	if err := ledger.Insert(newChat, prompt.IDChatHistory, Start); err != nil {
		return err
	}
	if nudge != nil {
		ledger.FreeBudget(nudge)
		if err := ledger.Insert(nudge, prompt.IDChatHistory, End); err != nil {
			return err
		}
	}
	return nil
}

// populateDialogueExamples inserts example blocks oldest to newest. Each
// block (its marker plus every turn) is affordable as a whole or skipped,
// and the first unaffordable block ends the pass.
func (asm *Assembler) populateDialogueExamples(ctx context.Context, ledger *ChatAssembly, req Request, report *Report) error {
	for bi, block := range req.Examples {
		if len(block) == 0 {
			continue
		}
		marker, err := NewMessage(ctx, asm.counter, IDNewExampleChat, RoleSystem, asm.cfg.NewExampleChatPrompt)
		if err != nil {
			return err
		}
		msgs := []*Message{marker}
		for ti, turn := range block {
			msg, err := asm.messageFromTurn(ctx, turn, fmt.Sprintf("%s-%d-%d", prompt.IDDialogueExamples, bi, ti))
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		ok, err := ledger.TryInsertAll(msgs, prompt.IDDialogueExamples, End)
		if err != nil {
			return err
		}
		if !ok {
			report.ExamplesDropped = len(req.Examples) - bi
			break
		}
		report.ExamplesInserted++
	}
	return nil
}

// messageFromTurn converts a persisted turn into a costed message,
// attaching media parts, tool payloads, and the speaker name when the
// configuration asks for it.
func (asm *Assembler) messageFromTurn(ctx context.Context, turn chatlog.Turn, identifier string) (*Message, error) {
	msg, err := NewMessage(ctx, asm.counter, identifier, turn.Role, turn.Content)
	if err != nil {
		return nil, err
	}
	msg.ToolCallID = turn.ToolCallID
	// Opaque backend metadata; carried through without a token cost of its
	// own.
	msg.Signature = turn.Signature

	for _, ref := range turn.Media {
		if err := msg.AddPart(ctx, asm.counter, tokenizer.Part{Type: tokenizer.PartImage, URL: ref}); err != nil {
			return nil, err
		}
	}

	if len(turn.ToolCalls) > 0 {
		calls := make([]ToolCall, 0, len(turn.ToolCalls))
		for _, tc := range turn.ToolCalls {
			calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		if err := msg.SetToolCalls(ctx, asm.counter, calls); err != nil {
			return nil, err
		}
	}

	if asm.cfg.Names == NamesCompletion && turn.Name != "" && (turn.Role == RoleUser || turn.Role == RoleAssistant) {
		sanitized := SanitizeName(turn.Name)
		if sanitized == "" {
			return nil, &InvalidNameError{Name: turn.Name}
		}
		if err := msg.SetName(ctx, asm.counter, sanitized); err != nil {
			return nil, err
		}
	}
	return msg, nil
}
