package metrics

import (
	"testing"
	"time"
)

func TestMultiObserverFansOut(t *testing.T) {
	a := NewMemoryObserver()
	b := NewMemoryObserver()
	multi := NewMultiObserver(a, nil, b)

	multi.RecordEvent(MetricsEvent{Name: "relay.turn", Time: time.Now(), Value: 12})

	for _, obs := range []*MemoryObserver{a, b} {
		events := obs.Events()
		if len(events) != 1 || events[0].Name != "relay.turn" {
			t.Fatalf("expected one relay.turn event, got %+v", events)
		}
	}
}

func TestMemoryObserverKeepsRecentWindow(t *testing.T) {
	m := NewMemoryObserver()
	for i := 0; i < memoryCap+10; i++ {
		m.RecordEvent(MetricsEvent{Name: "relay.turn"})
	}
	if m.Count() != memoryCap {
		t.Fatalf("expected %d retained events, got %d", memoryCap, m.Count())
	}
}
