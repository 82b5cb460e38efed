package mock

import (
	"context"
	"sync"

	"github.com/harunnryd/serena/pkg/llm"
)

type LLMConfig struct {
	ResponseText string
	ToolCalls    []llm.ToolCall
	Err          error
	// Responses, when set, is consumed one entry per Generate call.
	Responses []llm.Response
}

type LLMAdapter struct {
	cfg  LLMConfig
	mu   sync.Mutex
	next int
	seen []llm.Context
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" && cfg.Err == nil && len(cfg.Responses) == 0 {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, input)
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	if len(a.cfg.Responses) > 0 {
		resp := a.cfg.Responses[a.next%len(a.cfg.Responses)]
		a.next++
		return resp, nil
	}
	return llm.Response{
		Text:      a.cfg.ResponseText,
		ToolCalls: a.cfg.ToolCalls,
	}, nil
}

// Requests returns a copy of every context passed to Generate.
func (a *LLMAdapter) Requests() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Context, len(a.seen))
	copy(out, a.seen)
	return out
}

var _ llm.Adapter = (*LLMAdapter)(nil)
