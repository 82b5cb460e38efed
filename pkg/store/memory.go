package store

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/serena/pkg/lead"
)

// MemoryStore keeps everything in process memory. Used when no
// database is configured, and by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	calls map[string]*CallRecord
	turns map[string][]TurnRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calls: make(map[string]*CallRecord),
		turns: make(map[string][]TurnRecord),
	}
}

func (s *MemoryStore) LogCallStart(_ context.Context, start CallStart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calls[start.StreamSID]; ok {
		return nil
	}
	startTime := start.StartTime
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}
	s.calls[start.StreamSID] = &CallRecord{
		StreamSID:  start.StreamSID,
		CallSID:    start.CallSID,
		FromNumber: start.FromNumber,
		StartTime:  startTime,
		Status:     StatusInProgress,
	}
	return nil
}

func (s *MemoryStore) LogCallTurn(_ context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var meta map[string]string
	if len(turn.Metadata) > 0 {
		meta = make(map[string]string, len(turn.Metadata))
		for k, v := range turn.Metadata {
			meta[k] = v
		}
	}
	s.turns[turn.StreamSID] = append(s.turns[turn.StreamSID], TurnRecord{
		StreamSID: turn.StreamSID,
		Direction: turn.Direction,
		Text:      turn.Text,
		Timestamp: ts,
		Metadata:  meta,
	})
	return nil
}

func (s *MemoryStore) LogLeadInfo(_ context.Context, streamSID string, l lead.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[streamSID]
	if !ok {
		return ErrNotFound
	}
	call.Lead = l
	call.HasLead = true
	return nil
}

func (s *MemoryStore) EndCall(_ context.Context, streamSID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[streamSID]
	if !ok {
		return ErrNotFound
	}
	if call.EndTime != nil {
		return nil
	}
	now := time.Now().UTC()
	call.EndTime = &now
	call.Status = StatusCompleted
	call.EndReason = reason
	return nil
}

func (s *MemoryStore) Call(_ context.Context, streamSID string) (CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	call, ok := s.calls[streamSID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return *call, nil
}

func (s *MemoryStore) Turns(_ context.Context, streamSID string) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.turns[streamSID]
	out := make([]TurnRecord, len(src))
	copy(out, src)
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
