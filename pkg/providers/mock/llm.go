package mock

import (
	"context"
	"sync"

	"github.com/knolabs/daela/pkg/llm"
)

// LLMStep is one scripted model reply.
type LLMStep struct {
	Text      string
	ToolCalls []llm.ToolCall
	Err       error
}

type LLMConfig struct {
	ResponseText string
	// Script is consumed in order; once empty, ResponseText is returned.
	Script []LLMStep
}

// LLMAdapter is a scripted model that records every request it sees.
type LLMAdapter struct {
	mu     sync.Mutex
	cfg    LLMConfig
	script []LLMStep
	inputs []llm.Context
	called chan struct{}
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{
		cfg:    cfg,
		script: append([]LLMStep(nil), cfg.Script...),
		called: make(chan struct{}, 64),
	}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	a.mu.Lock()
	a.inputs = append(a.inputs, input)
	step := LLMStep{Text: a.cfg.ResponseText}
	if len(a.script) > 0 {
		step = a.script[0]
		a.script = a.script[1:]
	}
	a.mu.Unlock()
	select {
	case a.called <- struct{}{}:
	default:
	}
	if step.Err != nil {
		return llm.Response{}, step.Err
	}
	return llm.Response{Text: step.Text, ToolCalls: step.ToolCalls, FinishReason: "stop"}, nil
}

// Push appends steps to the script.
func (a *LLMAdapter) Push(steps ...LLMStep) {
	a.mu.Lock()
	a.script = append(a.script, steps...)
	a.mu.Unlock()
}

// Calls returns how many times Generate ran.
func (a *LLMAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inputs)
}

// Inputs returns every request received, oldest first.
func (a *LLMAdapter) Inputs() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Context(nil), a.inputs...)
}

// Called receives one value per Generate call.
func (a *LLMAdapter) Called() <-chan struct{} { return a.called }

var _ llm.LLMAdapter = (*LLMAdapter)(nil)
