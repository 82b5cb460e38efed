package tts

import "context"

// Synthesizer defines the contract for any text-to-speech vendor
// implementation. Synthesize returns a lazy, finite sequence of raw
// audio chunks in the telephony leg's encoding (mulaw 8000). The
// channel is closed when synthesis completes or fails mid-stream; the
// error return covers request setup and status failures only.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
}
