// Package llm provides chat completion with function calling for OpenAI
// and Gemini backends behind a shared Client interface.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Function declares a callable function offered to the model.
type Function struct {
	Name        string
	Description string
	Parameters  *Schema
}

// FunctionCall is the model's decision to invoke a declared function.
// Arguments carries the raw JSON object produced by the model.
type FunctionCall struct {
	Name      string
	Arguments string
}

// Request describes one completion call.
type Request struct {
	// System is the system instruction prepended to the conversation.
	System string

	// Messages is the conversation history, oldest first.
	Messages []Message

	// Functions are the function schemas offered to the model.
	Functions []Function

	// ForceFunction names the single declared function the model must
	// call this turn. Empty leaves the choice to the model.
	ForceFunction string

	// MaxTokens bounds the completion length. Zero uses the backend default.
	MaxTokens int

	// Temperature controls sampling. Zero uses the backend default.
	Temperature float32
}

// Response is a completion result: free text, a function call, or both.
type Response struct {
	Text         string
	FunctionCall *FunctionCall
}

// Client produces chat completions.
type Client interface {
	// Name returns the backend name, used in logs.
	Name() string

	// Complete performs one completion round trip, bounded by ctx.
	Complete(ctx context.Context, req *Request) (*Response, error)
}
