package assembly

import (
	"github.com/kayz/promptforge/internal/logger"
	"github.com/kayz/promptforge/internal/tokenizer"
)

// ChatAssembly is the budget ledger: one root message tree plus a mutable
// remaining-token counter. It is a generic accounting container with no
// knowledge of prompt ordering policy; one instance serves exactly one
// generation request and must be discarded on any assembly failure.
//
// Invariant: after every successful mutating call, the remaining budget
// equals the initial budget minus the token total of everything placed, and
// every placed message is reachable from the root.
type ChatAssembly struct {
	counter tokenizer.Counter

	budget        int
	initialBudget int

	root *MessageCollection
}

// New returns an empty ledger counting with counter.
func New(counter tokenizer.Counter) *ChatAssembly {
	return &ChatAssembly{
		counter: counter,
		root:    NewCollection("root"),
	}
}

// SetTokenBudget sets the budget to contextSize minus the response
// reservation. Called once at the start of assembly.
func (a *ChatAssembly) SetTokenBudget(contextSize, reservedResponse int) {
	a.budget = contextSize - reservedResponse
	a.initialBudget = a.budget
	logger.Debug("token budget set to %d (context %d, response reservation %d)", a.budget, contextSize, reservedResponse)
}

// Budget returns the remaining token allowance.
func (a *ChatAssembly) Budget() int {
	return a.budget
}

// InitialBudget returns the budget as set by SetTokenBudget.
func (a *ChatAssembly) InitialBudget() int {
	return a.initialBudget
}

// Root exposes the root collection for read-only traversal.
func (a *ChatAssembly) Root() *MessageCollection {
	return a.root
}

// CanAfford reports whether c fits the remaining budget.
func (a *ChatAssembly) CanAfford(c Costed) bool {
	return a.budget-c.Tokens() >= 0
}

// CanAffordAll reports whether the combined cost of all entries fits.
func (a *ChatAssembly) CanAffordAll(list []*Message) bool {
	total := 0
	for _, m := range list {
		total += m.Tokens()
	}
	return a.budget-total >= 0
}

// Add registers a named collection into the root at position (End appends;
// an explicit index overwrites the slot, supporting pre-declared empty
// regions filled in later passes). It fails with TokenBudgetExceededError
// when the collection's total does not fit, without mutating the tree; on
// an overwrite the replaced node's cost is refunded before affordability is
// judged, so a replacement only fails when the net change overruns.
func (a *ChatAssembly) Add(c *MessageCollection, position int) error {
	refund := 0
	if position != End {
		idx := position
		if idx < 0 {
			idx = 0
		}
		if idx < len(a.root.items) {
			refund = a.root.items[idx].Tokens()
		}
	}
	if a.budget+refund-c.Tokens() < 0 {
		return &TokenBudgetExceededError{Identifier: c.Identifier, Needed: c.Tokens(), Remaining: a.budget + refund}
	}
	replaced := a.root.SetCollection(c, position)
	if replaced != nil {
		a.budget += replaced.Tokens()
	}
	a.budget -= c.Tokens()
	logger.Trace("added collection %q (%d tokens), %d remaining", c.Identifier, c.Tokens(), a.budget)
	return nil
}

// Splice inserts a named collection into the root at index without
// overwriting, used to anchor content adjacent to an already-placed
// collection.
func (a *ChatAssembly) Splice(c *MessageCollection, index int) error {
	if !a.CanAfford(c) {
		return &TokenBudgetExceededError{Identifier: c.Identifier, Needed: c.Tokens(), Remaining: a.budget}
	}
	a.root.InsertCollectionAt(c, index)
	a.budget -= c.Tokens()
	return nil
}

// Insert places a single message into a previously registered named
// collection at position Start, End, or an explicit index.
func (a *ChatAssembly) Insert(m *Message, collectionID string, position int) error {
	target := a.root.Collection(collectionID)
	if target == nil {
		return &IdentifierNotFoundError{Identifier: collectionID}
	}
	if !a.CanAfford(m) {
		return &TokenBudgetExceededError{Identifier: m.Identifier, Needed: m.Tokens(), Remaining: a.budget}
	}
	target.InsertMessage(m, position)
	a.budget -= m.Tokens()
	return nil
}

// TryInsert is the non-erroring variant used by the greedy passes: it
// returns false instead of TokenBudgetExceededError when m does not fit.
// A missing collection identifier is still an error.
func (a *ChatAssembly) TryInsert(m *Message, collectionID string, position int) (bool, error) {
	target := a.root.Collection(collectionID)
	if target == nil {
		return false, &IdentifierNotFoundError{Identifier: collectionID}
	}
	if !a.CanAfford(m) {
		return false, nil
	}
	target.InsertMessage(m, position)
	a.budget -= m.Tokens()
	return true, nil
}

// TryInsertAll inserts an atomic block all-or-nothing, preserving slice
// order at the given position.
func (a *ChatAssembly) TryInsertAll(list []*Message, collectionID string, position int) (bool, error) {
	target := a.root.Collection(collectionID)
	if target == nil {
		return false, &IdentifierNotFoundError{Identifier: collectionID}
	}
	if !a.CanAffordAll(list) {
		return false, nil
	}
	if position == Start {
		for i := len(list) - 1; i >= 0; i-- {
			target.InsertMessage(list[i], Start)
			a.budget -= list[i].Tokens()
		}
		return true, nil
	}
	for _, m := range list {
		target.InsertMessage(m, position)
		a.budget -= m.Tokens()
	}
	return true, nil
}

// RemoveLastFrom pops the last message from a named collection and refunds
// its cost. Popping an empty collection is a logged no-op.
func (a *ChatAssembly) RemoveLastFrom(collectionID string) error {
	target := a.root.Collection(collectionID)
	if target == nil {
		return &IdentifierNotFoundError{Identifier: collectionID}
	}
	m := target.PopLast()
	if m == nil {
		logger.Debug("removeLastFrom %q: collection empty, nothing to remove", collectionID)
		return nil
	}
	a.budget += m.Tokens()
	return nil
}

// ReserveBudget withholds the cost of c from the budget without placing
// anything, for content whose exact form is decided later.
func (a *ChatAssembly) ReserveBudget(c Costed) {
	a.budget -= c.Tokens()
	logger.Trace("reserved %d tokens, %d remaining", c.Tokens(), a.budget)
}

// FreeBudget returns a previous reservation to the budget.
func (a *ChatAssembly) FreeBudget(c Costed) {
	a.budget += c.Tokens()
}

// Has reports whether identifier names anything reachable from the root.
func (a *ChatAssembly) Has(identifier string) bool {
	return a.root.Has(identifier)
}
