package mock

import (
	"context"
	"sync/atomic"

	"github.com/harunnryd/serena/pkg/adapters/tts"
)

type TTSConfig struct {
	// Chunks are the audio payloads streamed back for every request.
	// Defaults to a single 320-byte silent chunk.
	Chunks [][]byte
	Err    error
}

// Synthesizer returns deterministic audio chunks, or a fixed error.
type Synthesizer struct {
	cfg   TTSConfig
	calls atomic.Int64
}

func NewSynthesizer(cfg TTSConfig) *Synthesizer {
	if len(cfg.Chunks) == 0 && cfg.Err == nil {
		cfg.Chunks = [][]byte{make([]byte, 320)}
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Calls() int64 { return s.calls.Load() }

func (s *Synthesizer) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	s.calls.Add(1)
	if s.cfg.Err != nil {
		return nil, s.cfg.Err
	}
	out := make(chan []byte, len(s.cfg.Chunks))
	for _, chunk := range s.cfg.Chunks {
		out <- chunk
	}
	close(out)
	return out, nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
