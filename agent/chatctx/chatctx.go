// Package chatctx holds the ordered conversation history handed to the model.
package chatctx

import (
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/visionflow/types"
)

// ChatContext is an ordered sequence of messages. It is not safe for
// concurrent use; sessions guard it with a Holder.
type ChatContext struct {
	items []types.Message
}

// New creates a chat context seeded with the given messages.
func New(msgs ...types.Message) *ChatContext {
	c := &ChatContext{}
	for _, m := range msgs {
		c.items = append(c.items, m.Clone())
	}
	return c
}

// Copy returns a deep copy. Mutating the copy never affects the original.
func (c *ChatContext) Copy() *ChatContext {
	if c == nil {
		return New()
	}
	return New(c.items...)
}

// AddMessage appends a message built from role and parts and returns it.
// Parts keep their insertion order.
func (c *ChatContext) AddMessage(role types.Role, parts ...types.ContentPart) types.Message {
	msg := types.NewMessage(role, parts...)
	msg.ID = uuid.NewString()
	c.items = append(c.items, msg.Clone())
	return msg
}

// Append appends an already built message.
func (c *ChatContext) Append(msg types.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.items = append(c.items, msg.Clone())
}

// Messages returns a deep copy of the messages in chronological order.
func (c *ChatContext) Messages() []types.Message {
	out := make([]types.Message, len(c.items))
	for i, m := range c.items {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (c *ChatContext) Len() int {
	return len(c.items)
}

// Last returns the most recent message.
func (c *ChatContext) Last() (types.Message, bool) {
	if len(c.items) == 0 {
		return types.Message{}, false
	}
	return c.items[len(c.items)-1].Clone(), true
}

// ToDict renders the context as plain maps for logging and snapshots.
// With excludeImages set, image parts are dropped from the output.
func (c *ChatContext) ToDict(excludeImages bool) map[string]any {
	items := make([]map[string]any, 0, len(c.items))
	for _, m := range c.items {
		parts := make([]map[string]any, 0, len(m.Content))
		for _, p := range m.Content {
			switch p.Type {
			case types.PartText:
				parts = append(parts, map[string]any{"type": string(types.PartText), "text": p.Text})
			case types.PartImage:
				if excludeImages || p.Image == nil {
					continue
				}
				parts = append(parts, map[string]any{
					"type":      string(types.PartImage),
					"image":     p.Image.URL,
					"mime_type": p.Image.MimeType,
				})
			}
		}
		items = append(items, map[string]any{
			"id":         m.ID,
			"type":       "message",
			"role":       string(m.Role),
			"content":    parts,
			"created_at": m.Timestamp.Unix(),
		})
	}
	return map[string]any{"items": items}
}
