package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/harunnryd/serena/pkg/lead"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	gs, err := NewGormStore(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"gorm":   gs,
	}
}

func TestCallLifecycle(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			start := CallStart{
				StreamSID:  "MZ100",
				CallSID:    "CA100",
				FromNumber: "+971501112222",
				StartTime:  time.Now().UTC(),
			}
			if err := s.LogCallStart(ctx, start); err != nil {
				t.Fatalf("start: %v", err)
			}
			// Twilio may replay the start event; the record must not duplicate.
			if err := s.LogCallStart(ctx, start); err != nil {
				t.Fatalf("repeated start: %v", err)
			}

			call, err := s.Call(ctx, "MZ100")
			if err != nil {
				t.Fatalf("read call: %v", err)
			}
			if call.Status != StatusInProgress {
				t.Fatalf("expected %q, got %q", StatusInProgress, call.Status)
			}
			if call.EndTime != nil {
				t.Fatal("fresh call must have no end time")
			}

			if err := s.EndCall(ctx, "MZ100", "caller_hangup"); err != nil {
				t.Fatalf("end: %v", err)
			}
			if err := s.EndCall(ctx, "MZ100", "caller_hangup"); err != nil {
				t.Fatalf("repeated end: %v", err)
			}

			call, err = s.Call(ctx, "MZ100")
			if err != nil {
				t.Fatalf("read call: %v", err)
			}
			if call.Status != StatusCompleted || call.EndTime == nil {
				t.Fatalf("call not completed: %+v", call)
			}
			if call.EndReason != "caller_hangup" {
				t.Fatalf("unexpected end reason: %q", call.EndReason)
			}
		})
	}
}

func TestTurnOrdering(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.LogCallStart(ctx, CallStart{StreamSID: "MZ200"}); err != nil {
				t.Fatalf("start: %v", err)
			}

			lines := []struct {
				dir, text string
			}{
				{DirectionUser, "hello"},
				{DirectionAssistant, "hi, how can I help?"},
				{DirectionUser, "looking for a villa"},
				{DirectionAssistant, "what area do you prefer?"},
			}
			for _, line := range lines {
				err := s.LogCallTurn(ctx, Turn{
					StreamSID: "MZ200",
					Direction: line.dir,
					Text:      line.text,
					Metadata:  map[string]string{"source": "test"},
				})
				if err != nil {
					t.Fatalf("turn: %v", err)
				}
			}

			turns, err := s.Turns(ctx, "MZ200")
			if err != nil {
				t.Fatalf("read turns: %v", err)
			}
			if len(turns) != len(lines) {
				t.Fatalf("expected %d turns, got %d", len(lines), len(turns))
			}
			for i, line := range lines {
				if turns[i].Direction != line.dir || turns[i].Text != line.text {
					t.Fatalf("turn %d out of order: %+v", i, turns[i])
				}
			}
			if turns[0].Metadata["source"] != "test" {
				t.Fatalf("metadata lost: %+v", turns[0].Metadata)
			}
		})
	}
}

func TestLeadLastWriteWins(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.LogCallStart(ctx, CallStart{StreamSID: "MZ300"}); err != nil {
				t.Fatalf("start: %v", err)
			}

			first := lead.Lead{Name: "Sara", Budget: "1M AED"}
			second := lead.Lead{Name: "Sara", Contact: "sara@example.com", Budget: "2M AED"}
			if err := s.LogLeadInfo(ctx, "MZ300", first); err != nil {
				t.Fatalf("first lead: %v", err)
			}
			if err := s.LogLeadInfo(ctx, "MZ300", second); err != nil {
				t.Fatalf("second lead: %v", err)
			}

			call, err := s.Call(ctx, "MZ300")
			if err != nil {
				t.Fatalf("read call: %v", err)
			}
			if !call.HasLead {
				t.Fatal("lead missing")
			}
			if call.Lead != second {
				t.Fatalf("expected latest lead, got %+v", call.Lead)
			}
		})
	}
}

func TestUnknownStream(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.Call(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.LogLeadInfo(ctx, "missing", lead.Lead{Name: "x"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.EndCall(ctx, "missing", "hangup"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}
