package chatctx

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/visionflow/types"
)

func imagePart(tag string) types.ContentPart {
	return types.ImagePart(types.ImageContent{URL: "data:image/png;base64," + tag, MimeType: "image/png", Data: tag})
}

func TestChatContext_CopyIsIndependent(t *testing.T) {
	c := New(types.NewUserMessage("hi"))
	cp := c.Copy()
	cp.AddMessage(types.RoleUser, imagePart("AA"))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 2, cp.Len())
}

func TestChatContext_AddMessageKeepsPartOrder(t *testing.T) {
	c := New()
	msg := c.AddMessage(types.RoleUser, types.TextPart("a"), imagePart("1"), types.TextPart("b"), imagePart("2"))

	require.NotEmpty(t, msg.ID)
	last, ok := c.Last()
	require.True(t, ok)
	require.Len(t, last.Content, 4)
	assert.Equal(t, "a", last.Content[0].Text)
	assert.Equal(t, "1", last.Content[1].Image.Data)
	assert.Equal(t, "b", last.Content[2].Text)
	assert.Equal(t, "2", last.Content[3].Image.Data)
}

func TestChatContext_MessagesReturnsCopies(t *testing.T) {
	c := New()
	c.AddMessage(types.RoleUser, imagePart("AA"))

	msgs := c.Messages()
	msgs[0].Content[0].Image.Data = "changed"

	last, _ := c.Last()
	assert.Equal(t, "AA", last.Content[0].Image.Data)
}

func TestChatContext_ToDict(t *testing.T) {
	c := New()
	c.AddMessage(types.RoleUser, types.TextPart("look"), imagePart("AA"))

	full := c.ToDict(false)
	items := full["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "user", items[0]["role"])
	assert.Len(t, items[0]["content"], 2)

	noImages := c.ToDict(true)
	items = noImages["items"].([]map[string]any)
	assert.Len(t, items[0]["content"], 1)
}

func TestChatContext_NilCopy(t *testing.T) {
	var c *ChatContext
	assert.Equal(t, 0, c.Copy().Len())
	_, ok := New().Last()
	assert.False(t, ok)
}

func TestHolder_UpdateCommitsOnSuccess(t *testing.T) {
	h := NewHolder(New(types.NewUserMessage("hi")))

	updated, err := h.Update(func(c *ChatContext) error {
		c.AddMessage(types.RoleUser, imagePart("AA"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Len())
	assert.Equal(t, 2, h.Snapshot().Len())
	assert.Equal(t, uint64(1), h.Version())
}

func TestHolder_UpdateIsAllOrNothing(t *testing.T) {
	h := NewHolder(nil)

	_, err := h.Update(func(c *ChatContext) error {
		c.AddMessage(types.RoleUser, imagePart("AA"))
		return errors.New("encoding failed")
	})
	require.Error(t, err)
	assert.Equal(t, 0, h.Snapshot().Len())
	assert.Equal(t, uint64(0), h.Version())
}

func TestHolder_ReplaceCopiesInput(t *testing.T) {
	h := NewHolder(nil)
	c := New()
	c.AddMessage(types.RoleUser, types.TextPart("x"))

	h.Replace(c)
	c.AddMessage(types.RoleUser, types.TextPart("y"))

	assert.Equal(t, 1, h.Snapshot().Len())
}

func TestHolder_ConcurrentUpdatesNeverInterleave(t *testing.T) {
	h := NewHolder(nil)
	const writers = 16

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag := fmt.Sprintf("stream-%d", i)
			_, err := h.Update(func(c *ChatContext) error {
				c.AddMessage(types.RoleUser, types.TextPart(tag), imagePart(tag))
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap := h.Snapshot()
	require.Equal(t, writers, snap.Len())
	for _, m := range snap.Messages() {
		require.Len(t, m.Content, 2)
		assert.Equal(t, m.Content[0].Text, m.Content[1].Image.Data)
	}
}
