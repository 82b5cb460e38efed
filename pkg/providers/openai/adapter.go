package openai

import (
	"context"
	"encoding/json"
	"errors"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/harunnryd/serena/pkg/errorsx"
	"github.com/harunnryd/serena/pkg/llm"
)

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Adapter bridges the vendor-agnostic llm contract to the OpenAI
// chat-completion API, including the tools surface used for lead
// capture.
type Adapter struct {
	client *goopenai.Client
	model  string
}

func NewAdapter(cfg Config) *Adapter {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = goopenai.GPT4oMini
	}
	return &Adapter{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

func (a *Adapter) Name() string { return "openai" }

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	req := goopenai.ChatCompletionRequest{
		Model:    a.model,
		Messages: mapMessages(input.Messages),
	}
	if len(input.Tools) > 0 {
		req.Tools = mapTools(input.Tools)
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Response{}, errorsx.Wrap(err, errorsx.ReasonLLMTimeout)
		}
		return llm.Response{}, errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, errorsx.Wrap(errors.New("no choices"), errorsx.ReasonLLMGenerate)
	}

	choice := resp.Choices[0]
	out := llm.Response{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func mapMessages(in []llm.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		out = append(out, goopenai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

func mapTools(in []llm.Tool) []goopenai.Tool {
	out := make([]goopenai.Tool, 0, len(in))
	for _, t := range in {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	return out
}

var _ llm.Adapter = (*Adapter)(nil)
