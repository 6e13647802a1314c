package assembly

import (
	"context"
	"strings"

	"github.com/kayz/promptforge/internal/prompt"
)

// Marker identifiers for the structural chat boundary messages.
const (
	IDNewMainChat    = "newMainChat"
	IDNewExampleChat = "newExampleChat"
)

// Identifiers that are never squashed and act as merge barriers.
var protectedIdentifiers = map[string]bool{
	IDNewMainChat:       true,
	IDNewExampleChat:    true,
	prompt.IDGroupNudge: true,
}

// SquashSystemMessages merges runs of consecutive, name-less, unprotected
// system messages in the flattened root into single system messages, cutting
// the per-message overhead some backends charge. Merged text is joined with
// a newline; token counts of merged messages are recomputed through the
// counter and the budget is settled against the difference.
func (a *ChatAssembly) SquashSystemMessages(ctx context.Context) error {
	flat := a.root.Flatten()
	squashed := NewCollection("root")

	var run []*Message
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		if len(run) == 1 {
			squashed.InsertMessage(run[0], End)
			run = nil
			return nil
		}
		parts := make([]string, 0, len(run))
		oldTokens := 0
		for _, m := range run {
			parts = append(parts, m.Content)
			oldTokens += m.Tokens()
		}
		merged, err := NewMessage(ctx, a.counter, run[0].Identifier, RoleSystem, strings.Join(parts, "\n"))
		if err != nil {
			return err
		}
		a.budget += oldTokens - merged.Tokens()
		squashed.InsertMessage(merged, End)
		run = nil
		return nil
	}

	for _, m := range flat {
		if m.Role == RoleSystem && m.Name == "" && len(m.ToolCalls) == 0 && !protectedIdentifiers[m.Identifier] && !m.Empty() {
			run = append(run, m)
			continue
		}
		if err := flush(); err != nil {
			return err
		}
		squashed.InsertMessage(m, End)
	}
	if err := flush(); err != nil {
		return err
	}

	a.root = squashed
	return nil
}
