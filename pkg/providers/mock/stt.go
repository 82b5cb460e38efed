package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harunnryd/serena/pkg/adapters/stt"
	"github.com/harunnryd/serena/pkg/frames"
)

type STTConfig struct {
	StreamID   string
	CallSID    string
	TraceID    string
	Transcript string
	// RepeatTranscripts emits one final transcript per SendAudio call
	// instead of a single one for the whole session.
	RepeatTranscripts bool
}

// StreamingSTT emits a canned final transcript when it receives audio.
type StreamingSTT struct {
	cfg     STTConfig
	out     chan frames.Frame
	cancel  context.CancelFunc
	mu      sync.Mutex
	started bool
	closed  bool
	emitted bool
}

func NewSTT(cfg STTConfig) *StreamingSTT {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	return &StreamingSTT{cfg: cfg, out: make(chan frames.Frame, 16)}
}

func (s *StreamingSTT) Name() string { return "mock_stt" }

func (s *StreamingSTT) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, s.cancel = context.WithCancel(ctx)
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return nil
}

func (s *StreamingSTT) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	close(s.out)
	s.started = false
	return nil
}

func (s *StreamingSTT) SendAudio(frame frames.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.closed {
		return errors.New("not started")
	}
	if s.emitted && !s.cfg.RepeatTranscripts {
		return nil
	}
	s.emitted = true

	meta := map[string]string{
		frames.MetaStreamID: s.cfg.StreamID,
		frames.MetaCallSID:  s.cfg.CallSID,
		frames.MetaSource:   "stt",
		frames.MetaIsFinal:  "true",
	}
	if s.cfg.TraceID != "" {
		meta[frames.MetaTraceID] = s.cfg.TraceID
	}
	s.out <- frames.NewTextFrame(s.cfg.StreamID, time.Now().UnixNano(), s.cfg.Transcript, meta)
	return nil
}

func (s *StreamingSTT) Results() <-chan frames.Frame { return s.out }

var _ stt.StreamingSTT = (*StreamingSTT)(nil)
