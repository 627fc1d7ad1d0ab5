package chatctx

import (
	"sync"
)

// Holder owns the authoritative chat context of a session. Readers always
// observe a complete context: updates are built on a clone and swapped in
// under the write lock.
type Holder struct {
	mu      sync.RWMutex
	current *ChatContext
	version uint64
}

// NewHolder creates a holder around an initial context.
func NewHolder(initial *ChatContext) *Holder {
	if initial == nil {
		initial = New()
	}
	return &Holder{current: initial.Copy()}
}

// Snapshot returns a copy of the current context.
func (h *Holder) Snapshot() *ChatContext {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current.Copy()
}

// Version increments on every committed replacement.
func (h *Holder) Version() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.version
}

// Replace swaps in c as the authoritative context.
func (h *Holder) Replace(c *ChatContext) {
	next := c.Copy()
	h.mu.Lock()
	h.current = next
	h.version++
	h.mu.Unlock()
}

// Update clones the current context, applies fn to the clone and commits it.
// Nothing is committed when fn returns an error. The lock is held for the
// whole clone/apply/swap so concurrent updates never drop each other.
func (h *Holder) Update(fn func(c *ChatContext) error) (*ChatContext, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clone := h.current.Copy()
	if err := fn(clone); err != nil {
		return nil, err
	}
	h.current = clone
	h.version++
	return clone.Copy(), nil
}
