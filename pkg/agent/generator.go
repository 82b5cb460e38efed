package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/serena/pkg/errorsx"
	"github.com/harunnryd/serena/pkg/lead"
	"github.com/harunnryd/serena/pkg/llm"
	"github.com/harunnryd/serena/pkg/logging"
	"github.com/harunnryd/serena/pkg/metrics"
)

// ApologyLine is spoken whenever response generation fails. The caller
// must always hear something.
const ApologyLine = "Sorry, could you repeat that?"

// leadAckLine covers the case where the model captures a lead but
// returns no spoken text alongside the tool call.
const leadAckLine = "Perfect, I've noted that down. An agent from our team will reach out to you shortly."

const defaultSystemPrompt = `You are Serena, a friendly and professional real-estate assistant for Serena Properties, speaking with a caller on the phone.

Keep replies short and conversational, at most two sentences, with no markdown or lists. Answer questions about buying, selling and renting property, and gently gather the caller's name, contact details, budget, preferred location and property type.

Once you have at least the caller's name and a way to contact them, call the log_lead function with everything you have learned. Do not mention the function to the caller.`

const (
	defaultMaxHistory = 20
	defaultTimeout    = 15 * time.Second
)

type Config struct {
	SystemPrompt string
	MaxHistory   int
	Timeout      time.Duration
	StreamID     string
	CallSID      string
}

// Generator holds one call's conversation state and turns caller
// utterances into spoken replies, surfacing lead captures as a side
// channel. It never returns an error: failures degrade to ApologyLine.
type Generator struct {
	cfg     Config
	adapter llm.Adapter
	tools   []llm.Tool
	logger  *slog.Logger
	obs     metrics.Observer

	mu      sync.Mutex
	history []llm.Message
}

func NewGenerator(adapter llm.Adapter, cfg Config) *Generator {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Generator{
		cfg:     cfg,
		adapter: adapter,
		tools: []llm.Tool{{
			Name:        lead.ActionLogLead,
			Description: "Record the caller's details once enough of them are known.",
			Schema:      lead.Schema(),
		}},
		logger: logging.NewComponentLogger(slog.Default(), "agent"),
		obs:    metrics.NoopObserver{},
	}
}

func (g *Generator) SetObserver(obs metrics.Observer) {
	if obs != nil {
		g.obs = obs
	}
}

// GenerateResponse produces the assistant's reply to one final
// transcript. The second return value is non-nil when the model invoked
// the lead-capture action on this turn.
func (g *Generator) GenerateResponse(ctx context.Context, userText string) (string, *lead.Capture) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return ApologyLine, nil
	}

	g.mu.Lock()
	g.history = append(g.history, llm.Message{Role: llm.RoleUser, Content: userText})
	g.prune()
	input := llm.Context{
		Messages: g.snapshot(),
		Tools:    g.tools,
	}
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	started := time.Now()
	resp, err := g.adapter.Generate(ctx, input)
	if err != nil {
		g.logger.Error("response generation failed",
			"stream_id", g.cfg.StreamID,
			"call_sid", g.cfg.CallSID,
			"reason", errorsx.Reason(err),
			"error", err,
		)
		g.obs.RecordEvent(metrics.MetricsEvent{
			Name: "agent.generate_error",
			Time: time.Now(),
			Tags: map[string]string{
				"stream_id": g.cfg.StreamID,
				"reason":    string(errorsx.Reason(err)),
			},
		})
		g.rememberAssistant(ApologyLine)
		return ApologyLine, nil
	}

	text := strings.TrimSpace(resp.Text)
	capture := g.extractLead(resp.ToolCalls)
	if capture != nil && text == "" {
		text = leadAckLine
	}
	if text == "" {
		text = ApologyLine
	}
	g.rememberAssistant(text)

	g.obs.RecordEvent(metrics.MetricsEvent{
		Name:  "agent.generate",
		Time:  time.Now(),
		Value: float64(time.Since(started).Milliseconds()),
		Tags:  map[string]string{"stream_id": g.cfg.StreamID},
		Fields: map[string]any{
			"lead": capture != nil,
		},
	})
	return text, capture
}

func (g *Generator) extractLead(calls []llm.ToolCall) *lead.Capture {
	for _, call := range calls {
		if call.Name != lead.ActionLogLead {
			g.logger.Warn("ignoring unknown tool call", "tool", call.Name, "stream_id", g.cfg.StreamID)
			continue
		}
		captured := lead.FromArgs(call.Arguments)
		if captured.Empty() {
			continue
		}
		return &lead.Capture{Action: lead.ActionLogLead, Lead: captured}
	}
	return nil
}

func (g *Generator) rememberAssistant(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append(g.history, llm.Message{Role: llm.RoleAssistant, Content: text})
	g.prune()
}

// prune keeps the most recent MaxHistory turns. Callers must hold mu.
func (g *Generator) prune() {
	if over := len(g.history) - g.cfg.MaxHistory; over > 0 {
		g.history = append([]llm.Message(nil), g.history[over:]...)
	}
}

// snapshot returns system prompt plus history. Callers must hold mu.
func (g *Generator) snapshot() []llm.Message {
	out := make([]llm.Message, 0, len(g.history)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: g.cfg.SystemPrompt})
	out = append(out, g.history...)
	return out
}

// History returns a copy of the conversation so far, without the
// system prompt.
func (g *Generator) History() []llm.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]llm.Message, len(g.history))
	copy(out, g.history)
	return out
}
