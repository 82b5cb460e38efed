package synthesis

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/serena/pkg/providers/mock"
)

func drain(ch <-chan []byte) [][]byte {
	var out [][]byte
	for chunk := range ch {
		out = append(out, chunk)
	}
	return out
}

func TestGenerateAudioEmptyText(t *testing.T) {
	engine := NewEngine(mock.NewSynthesizer(mock.TTSConfig{}), Config{})

	chunks := drain(engine.GenerateAudio(context.Background(), "   "))
	if len(chunks) != 0 {
		t.Fatalf("expected no audio for blank text, got %d chunks", len(chunks))
	}
	if engine.Degraded() {
		t.Fatal("blank text must not trip the fallback latch")
	}
}

func TestGenerateAudioPrimary(t *testing.T) {
	primary := mock.NewSynthesizer(mock.TTSConfig{
		Chunks: [][]byte{{1, 2, 3}, {4, 5}},
	})
	engine := NewEngine(primary, Config{})

	chunks := drain(engine.GenerateAudio(context.Background(), "hello"))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if engine.Degraded() {
		t.Fatal("successful primary must not degrade the engine")
	}
}

func TestGenerateAudioFallbackSilence(t *testing.T) {
	primary := mock.NewSynthesizer(mock.TTSConfig{Err: errors.New("vendor down")})
	engine := NewEngine(primary, Config{})

	chunks := drain(engine.GenerateAudio(context.Background(), "hello"))
	if len(chunks) == 0 {
		t.Fatal("fallback must still produce audio")
	}
	for i, chunk := range chunks {
		if len(chunk) != chunkSize {
			t.Fatalf("chunk %d: expected %d bytes, got %d", i, chunkSize, len(chunk))
		}
		for _, b := range chunk {
			if b != 0xFF {
				t.Fatalf("chunk %d: expected ulaw silence, got %#x", i, b)
			}
		}
	}
	if !engine.Degraded() {
		t.Fatal("failed primary must latch the fallback")
	}
}

func TestGenerateAudioDegradedSkipsPrimary(t *testing.T) {
	primary := mock.NewSynthesizer(mock.TTSConfig{Err: errors.New("vendor down")})
	engine := NewEngine(primary, Config{})

	drain(engine.GenerateAudio(context.Background(), "first"))
	drain(engine.GenerateAudio(context.Background(), "second"))

	if got := primary.Calls(); got != 1 {
		t.Fatalf("expected primary to be tried once, got %d calls", got)
	}
}
