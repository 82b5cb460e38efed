package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harunnryd/serena/pkg/adapters/tts"
	"github.com/harunnryd/serena/pkg/errorsx"
	"github.com/harunnryd/serena/pkg/logging"
)

// ErrPermission marks a 401/403 from the synthesis endpoint. The API
// fails silently on bad keys unless this is surfaced explicitly, so
// callers latch their fallback path on it.
var ErrPermission = errors.New("elevenlabs: permission denied")

const defaultBaseURL = "https://api.elevenlabs.io"

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	BaseURL      string
	StreamID     string
	CallSID      string
}

// Client streams synthesized speech from the ElevenLabs HTTP endpoint,
// requesting the telephony leg's native ulaw 8000 format so no
// transcoding is needed.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_monolingual_v1"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "ulaw_8000"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
	}
}

func (c *Client) Name() string { return "elevenlabs_tts" }

func (c *Client) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	if c.cfg.APIKey == "" || c.cfg.VoiceID == "" {
		return nil, errorsx.Wrap(errors.New("missing elevenlabs config"), errorsx.ReasonTTSRequest)
	}

	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": c.cfg.ModelID,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.5,
		},
	})
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSRequest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURL(), bytes.NewReader(body))
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSRequest)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("tts request failed",
			slog.String("stream_id", c.cfg.StreamID),
			slog.String("error", err.Error()))
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSRequest)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		c.logger.Error("tts permission denied",
			slog.String("stream_id", c.cfg.StreamID),
			slog.String("status", resp.Status),
			slog.String("detail", string(detail)))
		return nil, errorsx.Wrap(ErrPermission, errorsx.ReasonTTSPermission)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		c.logger.Error("tts request rejected",
			slog.String("stream_id", c.cfg.StreamID),
			slog.String("status", resp.Status))
		return nil, errorsx.Wrap(fmt.Errorf("elevenlabs: %s: %s", resp.Status, string(detail)), errorsx.ReasonTTSRequest)
	}

	out := make(chan []byte, 32)
	go func() {
		defer resp.Body.Close()
		defer close(out)
		buf := make([]byte, 1024)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					c.logger.Warn("tts stream ended with error",
						slog.String("stream_id", c.cfg.StreamID),
						slog.String("error", err.Error()))
				}
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) streamURL() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	q := url.Values{}
	q.Set("output_format", c.cfg.OutputFormat)
	return base + "/v1/text-to-speech/" + c.cfg.VoiceID + "/stream?" + q.Encode()
}

var _ tts.Synthesizer = (*Client)(nil)
