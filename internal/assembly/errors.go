package assembly

import "fmt"

// TokenBudgetExceededError reports that a mandatory placement could not be
// afforded. Greedy passes never surface it; they stop early instead.
type TokenBudgetExceededError struct {
	Identifier string
	Needed     int
	Remaining  int
}

func (e *TokenBudgetExceededError) Error() string {
	return fmt.Sprintf("token budget exceeded placing %q: need %d, %d remaining", e.Identifier, e.Needed, e.Remaining)
}

// IdentifierNotFoundError reports an operation targeting a missing named
// collection or message. Always a configuration error, never retried.
type IdentifierNotFoundError struct {
	Identifier string
}

func (e *IdentifierNotFoundError) Error() string {
	return fmt.Sprintf("identifier %q not found", e.Identifier)
}

// InvalidNameError reports a message name that cannot be safely encoded for
// the target backend.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid message name %q", e.Name)
}
