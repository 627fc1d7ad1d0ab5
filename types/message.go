// Package types provides core types used across the visionflow worker.
// This package has ZERO dependencies on other visionflow packages to avoid circular imports.
// All other packages should import types from here.
package types

import (
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType identifies the kind of a content part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
)

// ImageContent represents inline image data for multimodal messages.
// URL holds a data URI ("data:<mime>;base64,<payload>"); MimeType and Data
// are the decoded pieces of it so providers do not have to re-parse.
type ImageContent struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data,omitempty"` // base64 encoded
}

// ContentPart is one piece of a message: either text or an inline image.
type ContentPart struct {
	Type  PartType      `json:"type"`
	Text  string        `json:"text,omitempty"`
	Image *ImageContent `json:"image,omitempty"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart builds an image content part.
func ImagePart(img ImageContent) ContentPart {
	return ContentPart{Type: PartImage, Image: &img}
}

// Message represents a conversation message.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   []ContentPart `json:"content"`
	Timestamp time.Time     `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and parts.
func NewMessage(role Role, parts ...ContentPart) Message {
	return Message{
		Role:      role,
		Content:   parts,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message with a single text part.
func NewUserMessage(text string) Message {
	return NewMessage(RoleUser, TextPart(text))
}

// NewAssistantMessage creates a new assistant message with a single text part.
func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, TextPart(text))
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var out string
	for _, p := range m.Content {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// Images returns the image parts of the message in insertion order.
func (m Message) Images() []ImageContent {
	var out []ImageContent
	for _, p := range m.Content {
		if p.Type == PartImage && p.Image != nil {
			out = append(out, *p.Image)
		}
	}
	return out
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	cp := m
	if m.Content != nil {
		cp.Content = make([]ContentPart, len(m.Content))
		for i, p := range m.Content {
			if p.Image != nil {
				img := *p.Image
				p.Image = &img
			}
			cp.Content[i] = p
		}
	}
	return cp
}
