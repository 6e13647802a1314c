package assembly

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kayz/promptforge/internal/chatlog"
	"github.com/kayz/promptforge/internal/prompt"
	"github.com/kayz/promptforge/internal/tokenizer"
)

// historyEntry is one element of the working conversation log: either a
// persisted turn or a synthetic depth-injected message.
type historyEntry struct {
	turn     chatlog.Turn
	injected *Message
}

// injectPrompts merges absolute prompts into the conversation log by depth.
// Depth 0 lands immediately before the newest turn. Within a depth, higher
// injection order comes first; within an order group, roles are emitted
// system, user, assistant, with same-role contributions joined by a newline.
// The log is processed newest-first and returned in chronological order.
func injectPrompts(ctx context.Context, counter tokenizer.Counter, turns []chatlog.Turn, absolutes []*prompt.Prompt) ([]historyEntry, error) {
	entries := make([]historyEntry, 0, len(turns))
	for _, t := range turns {
		entries = append(entries, historyEntry{turn: t})
	}
	if len(absolutes) == 0 {
		return entries, nil
	}

	reverseEntries(entries)

	byDepth := make(map[int][]*prompt.Prompt)
	maxDepth := 0
	for _, p := range absolutes {
		depth := p.Depth
		if depth < 0 {
			depth = 0
		}
		byDepth[depth] = append(byDepth[depth], p)
		if depth > maxDepth {
			maxDepth = depth
		}
	}

	totalInserted := 0
	for depth := 0; depth <= maxDepth; depth++ {
		group := byDepth[depth]
		if len(group) == 0 {
			continue
		}

		block, err := buildInjectionBlock(ctx, counter, depth, group)
		if err != nil {
			return nil, err
		}
		if len(block) == 0 {
			continue
		}

		// Index math assumes strictly increasing depth order; every
		// inserted message shifts later depth offsets by one. Clamp so
		// depths beyond the log length land at the oldest end.
		idx := depth + totalInserted
		if idx > len(entries) {
			idx = len(entries)
		}

		// The working log is newest-first, so the block goes in
		// reversed to read correctly after the final re-reversal.
		injected := make([]historyEntry, 0, len(block))
		for i := len(block) - 1; i >= 0; i-- {
			injected = append(injected, historyEntry{injected: block[i]})
		}
		entries = append(entries[:idx], append(injected, entries[idx:]...)...)
		totalInserted += len(block)
	}

	reverseEntries(entries)
	return entries, nil
}

// buildInjectionBlock renders one depth group into messages, ordered by
// injection order descending then role.
func buildInjectionBlock(ctx context.Context, counter tokenizer.Counter, depth int, group []*prompt.Prompt) ([]*Message, error) {
	orderSet := make(map[int]bool)
	for _, p := range group {
		orderSet[p.Order] = true
	}
	orders := make([]int, 0, len(orderSet))
	for o := range orderSet {
		orders = append(orders, o)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(orders)))

	roles := []prompt.Role{prompt.RoleSystem, prompt.RoleUser, prompt.RoleAssistant}

	var block []*Message
	for _, order := range orders {
		for _, role := range roles {
			var parts []string
			for _, p := range group {
				if p.Order != order || p.Role != role || p.Content == "" {
					continue
				}
				parts = append(parts, p.Content)
			}
			if len(parts) == 0 {
				continue
			}
			id := fmt.Sprintf("injection-d%d-o%d-%s", depth, order, role)
			msg, err := NewMessage(ctx, counter, id, string(role), strings.Join(parts, "\n"))
			if err != nil {
				return nil, fmt.Errorf("cost injection %s: %w", id, err)
			}
			msg.Injected = true
			block = append(block, msg)
		}
	}
	return block, nil
}

func reverseEntries(entries []historyEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
