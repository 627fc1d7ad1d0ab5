package llm

import (
	"context"

	"github.com/BaSui01/visionflow/types"
)

// GenerateRequest asks the model for the next assistant turn.
type GenerateRequest struct {
	Model string
	// Instructions is the agent's standing system prompt.
	Instructions string
	// Messages is the conversation so far, oldest first.
	Messages []types.Message
	// TurnInstruction steers this reply only; it is not kept in the context.
	TurnInstruction string
	Temperature     float32
	MaxTokens       int
}

// Usage reports token accounting when the provider returns it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResponse is one generated reply.
type GenerateResponse struct {
	ID           string `json:"id,omitempty"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Generator produces assistant replies from a conversation.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

func (f GeneratorFunc) Name() string { return "func" }

func (f GeneratorFunc) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	return f(ctx, req)
}
