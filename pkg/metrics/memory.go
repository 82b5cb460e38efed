package metrics

import "sync"

// memoryCap bounds the retained window so a long-lived process keeps
// only the most recent events.
const memoryCap = 1024

type MemoryObserver struct {
	mu     sync.Mutex
	events []MetricsEvent
}

func NewMemoryObserver() *MemoryObserver {
	return &MemoryObserver{}
}

func (m *MemoryObserver) RecordEvent(ev MetricsEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	if len(m.events) > memoryCap {
		m.events = m.events[len(m.events)-memoryCap:]
	}
	m.mu.Unlock()
}

// Events returns a snapshot of recorded events.
func (m *MemoryObserver) Events() []MetricsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MetricsEvent(nil), m.events...)
}

// Count reports how many events are currently retained.
func (m *MemoryObserver) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
