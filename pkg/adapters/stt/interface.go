package stt

import (
	"context"

	"github.com/harunnryd/serena/pkg/frames"
)

// StreamingSTT defines the contract for any speech-recognition vendor
// implementation. A client is built per call and is not restartable.
type StreamingSTT interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start establishes the streaming session. Failure is fatal for
	// the call.
	Start(ctx context.Context) error
	// Close tears the session down. Safe to call more than once.
	Close() error
	// SendAudio forwards one opaque audio frame. Errors are reported
	// but inbound audio must never block on them.
	SendAudio(frame frames.AudioFrame) error
	// Results yields finalized transcript frames until the session
	// closes. Interim results are not surfaced.
	Results() <-chan frames.Frame
}
