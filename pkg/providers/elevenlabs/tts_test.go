package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/harunnryd/serena/pkg/errorsx"
)

func TestSynthesizeStreamsChunks(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		gotKey = r.Header.Get("xi-api-key")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "key", VoiceID: "voice-1", BaseURL: srv.URL})
	chunks, err := c.Synthesize(context.Background(), "hello caller")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	var audio []byte
	for chunk := range chunks {
		audio = append(audio, chunk...)
	}
	if string(audio) != "audio-bytes" {
		t.Fatalf("unexpected audio: %q", audio)
	}
	if !strings.Contains(gotPath, "/v1/text-to-speech/voice-1/stream") {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if !strings.Contains(gotPath, "output_format=ulaw_8000") {
		t.Fatalf("expected ulaw_8000 output format, got %q", gotPath)
	}
	if gotKey != "key" {
		t.Fatalf("unexpected api key header: %q", gotKey)
	}
	if gotBody["text"] != "hello caller" || gotBody["model_id"] != "eleven_monolingual_v1" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
}

func TestSynthesizePermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "bad", VoiceID: "voice-1", BaseURL: srv.URL})
	_, err := c.Synthesize(context.Background(), "hi")
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonTTSPermission) {
		t.Fatalf("expected permission reason, got %v", errorsx.Reason(err))
	}
}

func TestSynthesizeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "key", VoiceID: "voice-1", BaseURL: srv.URL})
	_, err := c.Synthesize(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !errorsx.HasReason(err, errorsx.ReasonTTSRequest) {
		t.Fatalf("expected request reason, got %v", errorsx.Reason(err))
	}
}
