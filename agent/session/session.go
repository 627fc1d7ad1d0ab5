package session

import (
	"context"
	"time"

	"github.com/BaSui01/visionflow/agent/bytestream"
	"github.com/BaSui01/visionflow/agent/chatctx"
)

// ReplyOptions steers one generated reply.
type ReplyOptions struct {
	// Instructions applies to this reply only.
	Instructions string
	Kind         ReplyKind
}

// UserInputEvent is a transcribed user utterance.
type UserInputEvent struct {
	Participant string    `json:"participant"`
	Text        string    `json:"text"`
	IsFinal     bool      `json:"is_final"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReplyKind tells why a reply was produced.
type ReplyKind string

const (
	ReplyGreeting ReplyKind = "greeting"
	ReplyTurn     ReplyKind = "turn"
	ReplyCommand  ReplyKind = "command"
	ReplyApology  ReplyKind = "apology"
)

// Reply is an assistant utterance delivered to the room.
type Reply struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Text         string    `json:"text"`
	Instructions string    `json:"instructions,omitempty"`
	Kind         ReplyKind `json:"kind,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Session is the conversational surface an agent drives.
type Session interface {
	ID() string
	// ChatCtx returns a copy of the current conversation context.
	ChatCtx() *chatctx.ChatContext
	// UpdateChatCtx replaces the conversation context with c.
	UpdateChatCtx(ctx context.Context, c *chatctx.ChatContext) error
	// MutateChatCtx applies fn to a clone of the context and commits it
	// atomically. Nothing is committed when fn fails.
	MutateChatCtx(ctx context.Context, fn func(c *chatctx.ChatContext) error) (*chatctx.ChatContext, error)
	// GenerateReply asks the model for the next assistant turn.
	GenerateReply(ctx context.Context, opts ReplyOptions) (*Reply, error)
	// OnUserInput subscribes to final utterances.
	OnUserInput(fn func(UserInputEvent))
}

// Room is the shared space participants and the agent join.
type Room interface {
	Name() string
	// RegisterByteStreamHandler binds h to topic. A topic can be bound once.
	RegisterByteStreamHandler(topic string, h bytestream.Handler) error
}

// ReplySink delivers generated replies to the room.
type ReplySink interface {
	SendReply(ctx context.Context, reply Reply) error
}

// ReplySinkFunc adapts a function to ReplySink.
type ReplySinkFunc func(ctx context.Context, reply Reply) error

func (f ReplySinkFunc) SendReply(ctx context.Context, reply Reply) error { return f(ctx, reply) }
