package prompt

// Collection is an ordered, identifier-indexed sequence of prompts.
// Insertion order is significance order for non-injected prompts.
type Collection struct {
	prompts []*Prompt
}

// NewCollection returns an empty collection.
func NewCollection(prompts ...*Prompt) *Collection {
	c := &Collection{}
	for _, p := range prompts {
		c.Add(p)
	}
	return c
}

// Add appends a prompt. An existing prompt with the same identifier is
// replaced in place, preserving order.
func (c *Collection) Add(p *Prompt) {
	if i := c.Index(p.Identifier); i >= 0 {
		c.prompts[i] = p
		return
	}
	c.prompts = append(c.prompts, p)
}

// Override replaces the prompt at index without reordering.
func (c *Collection) Override(p *Prompt, index int) {
	if index < 0 || index >= len(c.prompts) {
		return
	}
	c.prompts[index] = p
}

// InsertAt splices a prompt in at index, shifting later entries.
func (c *Collection) InsertAt(p *Prompt, index int) {
	if index < 0 {
		index = 0
	}
	if index >= len(c.prompts) {
		c.prompts = append(c.prompts, p)
		return
	}
	c.prompts = append(c.prompts[:index], append([]*Prompt{p}, c.prompts[index:]...)...)
}

// Get returns the prompt with the given identifier, or nil.
func (c *Collection) Get(identifier string) *Prompt {
	if i := c.Index(identifier); i >= 0 {
		return c.prompts[i]
	}
	return nil
}

// Index returns the position of identifier, or -1.
func (c *Collection) Index(identifier string) int {
	for i, p := range c.prompts {
		if p.Identifier == identifier {
			return i
		}
	}
	return -1
}

// Has reports whether identifier is present.
func (c *Collection) Has(identifier string) bool {
	return c.Index(identifier) >= 0
}

// At returns the prompt at index, or nil when out of range.
func (c *Collection) At(index int) *Prompt {
	if index < 0 || index >= len(c.prompts) {
		return nil
	}
	return c.prompts[index]
}

// Len returns the number of prompts.
func (c *Collection) Len() int {
	return len(c.prompts)
}

// All returns the prompts in order. The slice is shared; callers must not
// reorder it.
func (c *Collection) All() []*Prompt {
	return c.prompts
}
