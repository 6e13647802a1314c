package assembly

// Costed is anything with a token cost: a Message, a MessageCollection, or
// a raw TokenCount.
type Costed interface {
	Tokens() int
}

// TokenCount is a raw token amount usable with the reserve/free operations.
type TokenCount int

// Tokens implements Costed.
func (t TokenCount) Tokens() int { return int(t) }

// node is one element of a collection tree: a leaf message or a nested
// collection.
type node interface {
	Costed
	flattenInto(out *[]*Message)
	hasIdentifier(id string) bool
}

func (m *Message) flattenInto(out *[]*Message) { *out = append(*out, m) }

func (m *Message) hasIdentifier(id string) bool { return m.Identifier == id }

// MessageCollection is an ordered, identifier-indexed tree of messages and
// nested collections. Named sub-regions (chat history, dialogue examples)
// are collections so they can be located, measured, and filled
// independently.
type MessageCollection struct {
	Identifier string
	items      []node
}

// Positions for Insert-style operations.
const (
	Start = -1
	End   = -2
)

// NewCollection returns an empty collection with the given identifier.
func NewCollection(identifier string) *MessageCollection {
	return &MessageCollection{Identifier: identifier}
}

// NewCollectionWith returns a collection pre-filled with messages.
func NewCollectionWith(identifier string, messages ...*Message) *MessageCollection {
	c := NewCollection(identifier)
	for _, m := range messages {
		c.items = append(c.items, m)
	}
	return c
}

// Tokens returns the aggregate token count of the subtree.
func (c *MessageCollection) Tokens() int {
	total := 0
	for _, it := range c.items {
		total += it.Tokens()
	}
	return total
}

// Len returns the number of direct children.
func (c *MessageCollection) Len() int {
	return len(c.items)
}

// Flatten returns the contained messages in order-preserving depth-first
// order.
func (c *MessageCollection) Flatten() []*Message {
	var out []*Message
	c.flattenInto(&out)
	return out
}

func (c *MessageCollection) flattenInto(out *[]*Message) {
	for _, it := range c.items {
		it.flattenInto(out)
	}
}

// Has reports whether id names this collection or anything beneath it.
func (c *MessageCollection) Has(id string) bool {
	return c.hasIdentifier(id)
}

func (c *MessageCollection) hasIdentifier(id string) bool {
	if c.Identifier == id {
		return true
	}
	for _, it := range c.items {
		if it.hasIdentifier(id) {
			return true
		}
	}
	return false
}

// Collection returns the direct child collection with the given identifier,
// or nil.
func (c *MessageCollection) Collection(id string) *MessageCollection {
	for _, it := range c.items {
		if sub, ok := it.(*MessageCollection); ok && sub.Identifier == id {
			return sub
		}
	}
	return nil
}

// CollectionIndex returns the index of the direct child collection with the
// given identifier, or -1.
func (c *MessageCollection) CollectionIndex(id string) int {
	for i, it := range c.items {
		if sub, ok := it.(*MessageCollection); ok && sub.Identifier == id {
			return i
		}
	}
	return -1
}

// AppendCollection adds a nested collection at the end.
func (c *MessageCollection) AppendCollection(sub *MessageCollection) {
	c.items = append(c.items, sub)
}

// SetCollection places sub at index, overwriting the existing slot. When
// index is End or past the end, sub is appended. The replaced node is
// returned so the caller can settle its cost.
func (c *MessageCollection) SetCollection(sub *MessageCollection, index int) node {
	if index == End || index >= len(c.items) {
		c.items = append(c.items, sub)
		return nil
	}
	if index < 0 {
		index = 0
	}
	replaced := c.items[index]
	c.items[index] = sub
	return replaced
}

// InsertCollectionAt splices a nested collection in at index without
// overwriting.
func (c *MessageCollection) InsertCollectionAt(sub *MessageCollection, index int) {
	c.insertAt(sub, index)
}

// InsertMessage places m at position Start, End, or an explicit index.
func (c *MessageCollection) InsertMessage(m *Message, position int) {
	c.insertAt(m, position)
}

func (c *MessageCollection) insertAt(n node, position int) {
	switch {
	case position == End || position >= len(c.items):
		c.items = append(c.items, n)
	case position == Start || position <= 0:
		c.items = append([]node{n}, c.items...)
	default:
		c.items = append(c.items[:position], append([]node{n}, c.items[position:]...)...)
	}
}

// PopLast removes and returns the last direct child message. It returns nil
// when the collection is empty or the last child is a nested collection.
func (c *MessageCollection) PopLast() *Message {
	if len(c.items) == 0 {
		return nil
	}
	last, ok := c.items[len(c.items)-1].(*Message)
	if !ok {
		return nil
	}
	c.items = c.items[:len(c.items)-1]
	return last
}
