package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/serena/pkg/errorsx"
	"github.com/harunnryd/serena/pkg/frames"
)

func TestSendAudioFrame(t *testing.T) {
	tr := New(Config{})
	sess := &session{sendCh: make(chan []byte, 1)}
	tr.mu.Lock()
	tr.sessions["stream-1"] = sess
	tr.mu.Unlock()

	af := frames.NewAudioFrame("stream-1", time.Now().UnixNano(), []byte{0x01, 0x02}, 8000, 1, map[string]string{
		frames.MetaStreamID: "stream-1",
	})
	if err := tr.Send(af); err != nil {
		t.Fatalf("send error: %v", err)
	}

	select {
	case msg := <-sess.sendCh:
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if evt, _ := payload["event"].(string); evt != "media" {
			t.Fatalf("expected media event, got %q", evt)
		}
		media, _ := payload["media"].(map[string]any)
		if media == nil || media["payload"] != base64.StdEncoding.EncodeToString([]byte{0x01, 0x02}) {
			t.Fatalf("unexpected media payload: %v", payload)
		}
	default:
		t.Fatalf("expected media event to be enqueued")
	}
}

func TestSendWithoutSessionIsNoop(t *testing.T) {
	tr := New(Config{})
	af := frames.NewAudioFrame("unknown", time.Now().UnixNano(), []byte{0x01}, 8000, 1, map[string]string{
		frames.MetaStreamID: "unknown",
	})
	if err := tr.Send(af); err != nil {
		t.Fatalf("send to unknown stream must be a noop, got %v", err)
	}
}

func TestSessionEnqueueAfterClose(t *testing.T) {
	sess := &session{sendCh: make(chan []byte, 1)}
	if err := sess.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := sess.enqueue(map[string]any{"event": "media"})
	if err == nil {
		t.Fatal("enqueue after close must fail")
	}
	if !errorsx.HasReason(err, errorsx.ReasonTransportSend) {
		t.Fatalf("expected transport send reason, got %v", err)
	}
	// Repeated close stays a no-op.
	if err := sess.close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestSessionEnqueueCloseRace(t *testing.T) {
	// A stop event can tear the session down while the relay is still
	// sending synthesized audio through it.
	for i := 0; i < 50; i++ {
		sess := &session{sendCh: make(chan []byte, 4)}
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = sess.enqueue(map[string]any{"event": "media"})
			}
		}()
		go func() {
			defer wg.Done()
			_ = sess.close()
		}()
		wg.Wait()
	}
}

func TestHandleVoiceTwiML(t *testing.T) {
	tr := New(Config{PublicURL: "https://example.com", VoiceGreeting: "Hello & welcome"})

	req := httptest.NewRequest(http.MethodPost, "https://example.com/voice", nil)
	w := httptest.NewRecorder()
	tr.handleVoice(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<Say>Hello &amp; welcome</Say>") {
		t.Fatalf("expected escaped greeting, got %q", body)
	}
	if !strings.Contains(body, `<Connect><Stream url="wss://example.com/media-stream"/></Connect>`) {
		t.Fatalf("expected stream connect, got %q", body)
	}
}

func TestHandleVoiceSignatureValidation(t *testing.T) {
	cfg := Config{AuthToken: "token", PublicURL: "https://example.com", VoicePath: "/voice"}
	tr := New(cfg)

	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("From", "+123")
	body := form.Encode()

	req := httptest.NewRequest(http.MethodPost, "https://example.com/voice", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	params := map[string]string{"CallSid": "CA123", "From": "+123"}
	sig := computeSignature(cfg.AuthToken, tr.requestURL(req), params)
	req.Header.Set("X-Twilio-Signature", sig)

	w := httptest.NewRecorder()
	tr.handleVoice(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	reqInvalid := httptest.NewRequest(http.MethodPost, "https://example.com/voice", strings.NewReader(body))
	reqInvalid.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	reqInvalid.Header.Set("X-Twilio-Signature", "invalid")
	wInvalid := httptest.NewRecorder()
	tr.handleVoice(wInvalid, reqInvalid)
	if wInvalid.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", wInvalid.Code)
	}
}

func TestHandleStatusCallbackMapping(t *testing.T) {
	cfg := Config{AuthToken: "token", PublicURL: "https://example.com", StatusCallbackPath: "/status"}
	tr := New(cfg)
	streamID := "stream-1"
	callSID := "CA123"

	tr.mu.Lock()
	tr.callStreams[callSID] = streamID
	tr.callSIDs[streamID] = callSID
	tr.mu.Unlock()

	form := url.Values{}
	form.Set("CallSid", callSID)
	form.Set("CallStatus", "completed")
	body := form.Encode()

	req := httptest.NewRequest(http.MethodPost, "https://example.com/status", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	params := map[string]string{"CallSid": callSID, "CallStatus": "completed"}
	sig := computeSignature(cfg.AuthToken, tr.requestURL(req), params)
	req.Header.Set("X-Twilio-Signature", sig)

	w := httptest.NewRecorder()
	tr.handleStatusCallback(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	select {
	case frame := <-tr.Recv():
		sys, ok := frame.(frames.SystemFrame)
		if !ok {
			t.Fatalf("expected SystemFrame, got %T", frame)
		}
		if sys.Name() != frames.SystemCallEnd {
			t.Fatalf("expected call_end event, got %q", sys.Name())
		}
		meta := sys.Meta()
		if meta[frames.MetaCallEndReason] != "completed" {
			t.Fatalf("expected call_end_reason completed, got %q", meta[frames.MetaCallEndReason])
		}
		if meta[frames.MetaCallSID] != callSID {
			t.Fatalf("expected call_sid %q, got %q", callSID, meta[frames.MetaCallSID])
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("expected call_end frame")
	}
}

func TestNormalizeCallEndReason(t *testing.T) {
	cases := map[string]string{
		"completed":        "completed",
		"hangup":           "completed",
		"busy":             "busy",
		"no-answer":        "no_answer",
		"failed":           "failed",
		"transport_closed": "failed",
		"in-progress":      "",
		"":                 "",
		"weird":            "unknown",
	}
	for in, want := range cases {
		if got := normalizeCallEndReason(in); got != want {
			t.Fatalf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func computeSignature(authToken, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	base := url
	for _, k := range keys {
		base += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
