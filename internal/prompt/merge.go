package prompt

import "github.com/kayz/promptforge/internal/logger"

// CharacterOverride carries per-character replacement content for one of the
// overridable prompts (main, jailbreak).
type CharacterOverride struct {
	Content string
}

// Merge combines the user's configured prompt order with the slot prompts
// computed for the current request. Placement metadata (role, position,
// depth, order) always comes from the user's configuration when the slot is
// present there; content always comes from the freshly computed slot. Slots
// unknown to the configuration are inserted at their natural position, which
// is the order they are supplied in.
//
// The configured collection is not modified; a new collection is returned.
func Merge(configured *Collection, slots []*Prompt) *Collection {
	merged := NewCollection()
	for _, p := range configured.All() {
		merged.Add(p.Clone())
	}

	for _, slot := range slots {
		if existing := merged.Get(slot.Identifier); existing != nil {
			inherited := slot.Clone()
			inherited.Role = existing.Role
			inherited.Position = existing.Position
			inherited.Depth = existing.Depth
			inherited.Order = existing.Order
			inherited.Marker = existing.Marker
			inherited.ForbidOverride = existing.ForbidOverride
			merged.Override(inherited, merged.Index(slot.Identifier))
			continue
		}
		merged.Add(slot.Clone())
	}

	return merged
}

// ApplyDisabled blanks the content of prompts the active character opts out
// of, so assembly treats them as absent while their configured placement
// survives for future requests.
func ApplyDisabled(c *Collection, disabled map[string]bool) {
	for id := range disabled {
		target := c.Get(id)
		if target == nil || target.Marker {
			continue
		}
		blanked := target.Clone()
		blanked.Content = ""
		c.Override(blanked, c.Index(id))
	}
}

// ApplyCharacterOverrides replaces the content of the overridable prompts
// with per-character values. Prompts that forbid overrides, prompts disabled
// for the active character, and unknown identifiers are skipped.
func ApplyCharacterOverrides(c *Collection, overrides map[string]CharacterOverride, disabled map[string]bool) {
	for id, ov := range overrides {
		if id != IDMain && id != IDJailbreak {
			logger.Debug("ignoring character override for non-overridable prompt %q", id)
			continue
		}
		target := c.Get(id)
		if target == nil {
			continue
		}
		if target.ForbidOverride {
			logger.Debug("prompt %q forbids overrides, keeping configured content", id)
			continue
		}
		if disabled[id] {
			logger.Debug("prompt %q is disabled for the active character, skipping override", id)
			continue
		}
		if ov.Content == "" {
			continue
		}
		replacement := target.Clone()
		replacement.Content = ov.Content
		c.Override(replacement, c.Index(id))
	}
}
