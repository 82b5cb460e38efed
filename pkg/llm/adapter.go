package llm

import "context"

// Message is one entry of the running dialogue sent to the provider.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Tool describes one callable action the model may invoke.
type Tool struct {
	Name        string
	Description string
	Schema      any
}

type Context struct {
	Messages []Message
	Tools    []Tool
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

type Response struct {
	Text         string
	FinishReason string
	ToolCalls    []ToolCall
}

// Adapter is the contract for any chat-completion vendor implementation.
type Adapter interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Generate sends the dialogue and returns the model's reply.
	Generate(ctx context.Context, input Context) (Response, error)
}
