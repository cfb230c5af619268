package llm

import "context"

// Tool is a function definition offered to the model. Schema is a JSON
// schema object describing the arguments.
type Tool struct {
	Name        string
	Description string
	Schema      any
}

// Context is one model request: provider-shaped messages plus the tools
// the model may call.
type Context struct {
	Messages []map[string]any
	Tools    []Tool
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
	ToolCalls    []ToolCall
}

type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	Name() string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}
