package synthesis

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/harunnryd/serena/pkg/adapters/tts"
	"github.com/harunnryd/serena/pkg/errorsx"
	"github.com/harunnryd/serena/pkg/logging"
)

const (
	// ulaw at 8 kHz, 20 ms per chunk.
	chunkSize     = 160
	silenceChunks = 25
)

type Config struct {
	// LocalFallback enables espeak+ffmpeg synthesis when the primary
	// vendor fails. Without it failures degrade straight to silence.
	LocalFallback bool
	EspeakBin     string
	FFmpegBin     string
}

// Engine wraps a primary synthesizer and guarantees that every request
// yields audio. Once the primary fails the engine stays on the fallback
// path for the rest of its lifetime.
type Engine struct {
	cfg      Config
	primary  tts.Synthesizer
	logger   *slog.Logger
	degraded atomic.Bool
}

func NewEngine(primary tts.Synthesizer, cfg Config) *Engine {
	if cfg.EspeakBin == "" {
		cfg.EspeakBin = "espeak"
	}
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	return &Engine{
		cfg:     cfg,
		primary: primary,
		logger:  logging.NewComponentLogger(slog.Default(), "synthesis"),
	}
}

// Degraded reports whether the engine has latched onto the fallback path.
func (e *Engine) Degraded() bool { return e.degraded.Load() }

// GenerateAudio converts text to a stream of ulaw_8000 chunks. It never
// returns an error: empty input yields a closed channel, and vendor
// failures fall back to local synthesis or silence.
func (e *Engine) GenerateAudio(ctx context.Context, text string) <-chan []byte {
	if strings.TrimSpace(text) == "" {
		out := make(chan []byte)
		close(out)
		return out
	}

	if !e.degraded.Load() {
		chunks, err := e.primary.Synthesize(ctx, text)
		if err == nil {
			return chunks
		}
		e.degraded.Store(true)
		e.logger.Warn("primary synthesizer failed, switching to fallback",
			"provider", e.primary.Name(),
			"error", err,
			"reason", errorsx.Reason(err),
		)
	}

	return e.fallback(ctx, text)
}

func (e *Engine) fallback(ctx context.Context, text string) <-chan []byte {
	if e.cfg.LocalFallback {
		if audio, err := e.synthesizeLocal(ctx, text); err == nil {
			return chunked(audio)
		} else {
			e.logger.Warn("local fallback failed, emitting silence", "error", err)
		}
	}
	return silence()
}

// synthesizeLocal shells out to espeak for a wav and ffmpeg for the
// ulaw transcode. Both binaries must be on PATH.
func (e *Engine) synthesizeLocal(ctx context.Context, text string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "serena-tts-")
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSFallback)
	}
	defer os.RemoveAll(dir)

	wavPath := filepath.Join(dir, "out.wav")
	speak := exec.CommandContext(ctx, e.cfg.EspeakBin, "-w", wavPath, text)
	if err := speak.Run(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSFallback)
	}

	ulawPath := filepath.Join(dir, "out.ulaw")
	transcode := exec.CommandContext(ctx, e.cfg.FFmpegBin,
		"-y", "-i", wavPath,
		"-ar", "8000", "-ac", "1",
		"-f", "mulaw", ulawPath,
	)
	if err := transcode.Run(); err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSFallback)
	}

	audio, err := os.ReadFile(ulawPath)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSFallback)
	}
	if len(audio) == 0 {
		return nil, errorsx.Wrap(os.ErrInvalid, errorsx.ReasonTTSFallback)
	}
	return audio, nil
}

func chunked(audio []byte) <-chan []byte {
	out := make(chan []byte, len(audio)/chunkSize+1)
	for off := 0; off < len(audio); off += chunkSize {
		end := off + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		chunk := make([]byte, end-off)
		copy(chunk, audio[off:end])
		out <- chunk
	}
	close(out)
	return out
}

// silence returns a short run of ulaw silence so the caller still hears
// the line as live.
func silence() <-chan []byte {
	out := make(chan []byte, silenceChunks)
	for i := 0; i < silenceChunks; i++ {
		chunk := make([]byte, chunkSize)
		for j := range chunk {
			chunk[j] = 0xFF
		}
		out <- chunk
	}
	close(out)
	return out
}
