package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_TextAndImages(t *testing.T) {
	msg := NewMessage(RoleUser,
		TextPart("look "),
		ImagePart(ImageContent{URL: "data:image/png;base64,AA==", MimeType: "image/png", Data: "AA=="}),
		TextPart("here"),
	)

	assert.Equal(t, "look here", msg.Text())
	imgs := msg.Images()
	assert.Len(t, imgs, 1)
	assert.Equal(t, "image/png", imgs[0].MimeType)
}

func TestMessage_CloneIsDeep(t *testing.T) {
	msg := NewMessage(RoleUser, ImagePart(ImageContent{URL: "a", MimeType: "image/png"}))
	cp := msg.Clone()

	cp.Content[0].Image.URL = "b"
	cp.Content = append(cp.Content, TextPart("extra"))

	assert.Equal(t, "a", msg.Content[0].Image.URL)
	assert.Len(t, msg.Content, 1)
}
