package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/serena/pkg/lead"
	"github.com/harunnryd/serena/pkg/llm"
	"github.com/harunnryd/serena/pkg/metrics"
	"github.com/harunnryd/serena/pkg/providers/mock"
)

func TestGenerateResponseText(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{ResponseText: "We have villas in Dubai Marina."})
	gen := NewGenerator(adapter, Config{StreamID: "MZ1"})
	obs := metrics.NewMemoryObserver()
	gen.SetObserver(obs)

	text, capture := gen.GenerateResponse(context.Background(), "do you have villas?")
	if text != "We have villas in Dubai Marina." {
		t.Fatalf("unexpected reply: %q", text)
	}
	if capture != nil {
		t.Fatal("no tool call means no lead capture")
	}

	history := gen.History()
	if len(history) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(history))
	}
	if history[0].Role != llm.RoleUser || history[1].Role != llm.RoleAssistant {
		t.Fatalf("unexpected roles: %s, %s", history[0].Role, history[1].Role)
	}

	events := obs.Events()
	if len(events) != 1 || events[0].Name != "agent.generate" {
		t.Fatalf("expected one agent.generate event, got %+v", events)
	}
	if events[0].Tags["stream_id"] != "MZ1" {
		t.Fatalf("event missing stream tag: %+v", events[0])
	}
	if got, ok := events[0].Fields["lead"].(bool); !ok || got {
		t.Fatalf("expected lead=false field, got %+v", events[0].Fields)
	}
}

func TestGenerateResponseApologyOnError(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{Err: errors.New("upstream down")})
	gen := NewGenerator(adapter, Config{})
	obs := metrics.NewMemoryObserver()
	gen.SetObserver(obs)

	text, capture := gen.GenerateResponse(context.Background(), "hello?")
	if text != ApologyLine {
		t.Fatalf("expected apology, got %q", text)
	}
	if capture != nil {
		t.Fatal("failed generation must not capture a lead")
	}

	events := obs.Events()
	if len(events) != 1 || events[0].Name != "agent.generate_error" {
		t.Fatalf("expected one agent.generate_error event, got %+v", events)
	}
}

func TestGenerateResponseLeadCapture(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{
		ResponseText: "Great, I have your details.",
		ToolCalls: []llm.ToolCall{{
			ID:   "call_1",
			Name: lead.ActionLogLead,
			Arguments: map[string]any{
				"name":    "Sara",
				"contact": "sara@example.com",
				"budget":  "2M AED",
			},
		}},
	})
	gen := NewGenerator(adapter, Config{})

	text, capture := gen.GenerateResponse(context.Background(), "my name is Sara, sara@example.com, budget 2M")
	if text != "Great, I have your details." {
		t.Fatalf("unexpected reply: %q", text)
	}
	if capture == nil {
		t.Fatal("expected a lead capture")
	}
	if capture.Action != lead.ActionLogLead {
		t.Fatalf("unexpected action: %q", capture.Action)
	}
	if capture.Lead.Name != "Sara" || capture.Lead.Contact != "sara@example.com" {
		t.Fatalf("unexpected lead: %+v", capture.Lead)
	}
}

func TestGenerateResponseLeadWithoutText(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{
		ResponseText: " ",
		ToolCalls: []llm.ToolCall{{
			Name:      lead.ActionLogLead,
			Arguments: map[string]any{"name": "Omar"},
		}},
	})
	gen := NewGenerator(adapter, Config{})

	text, capture := gen.GenerateResponse(context.Background(), "I'm Omar")
	if capture == nil {
		t.Fatal("expected a lead capture")
	}
	if text == "" || text == ApologyLine {
		t.Fatalf("tool-only turn still needs a spoken acknowledgement, got %q", text)
	}
}

func TestGenerateResponseUnknownToolIgnored(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{
		ResponseText: "Sure.",
		ToolCalls: []llm.ToolCall{{
			Name:      "book_flight",
			Arguments: map[string]any{"city": "Dubai"},
		}},
	})
	gen := NewGenerator(adapter, Config{})

	_, capture := gen.GenerateResponse(context.Background(), "book me a flight")
	if capture != nil {
		t.Fatal("unknown tools must not produce lead captures")
	}
}

func TestHistoryPruning(t *testing.T) {
	adapter := mock.NewLLMAdapter(mock.LLMConfig{ResponseText: "noted"})
	gen := NewGenerator(adapter, Config{MaxHistory: 4})

	for i := 0; i < 6; i++ {
		gen.GenerateResponse(context.Background(), "another question")
	}
	if got := len(gen.History()); got != 4 {
		t.Fatalf("expected history capped at 4, got %d", got)
	}

	reqs := adapter.Requests()
	last := reqs[len(reqs)-1]
	if last.Messages[0].Role != llm.RoleSystem {
		t.Fatal("system prompt must stay at the head of every request")
	}
	if len(last.Messages) > 5 {
		t.Fatalf("request grew past the history cap: %d messages", len(last.Messages))
	}
}
