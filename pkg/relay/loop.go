package relay

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/serena/pkg/adapters/stt"
	"github.com/harunnryd/serena/pkg/errorsx"
	"github.com/harunnryd/serena/pkg/frames"
	"github.com/harunnryd/serena/pkg/lead"
	"github.com/harunnryd/serena/pkg/logging"
	"github.com/harunnryd/serena/pkg/metrics"
	"github.com/harunnryd/serena/pkg/redact"
	"github.com/harunnryd/serena/pkg/store"
)

// Responder turns a final transcript into the next spoken reply.
type Responder interface {
	GenerateResponse(ctx context.Context, userText string) (string, *lead.Capture)
}

// AudioSource converts reply text into outbound audio chunks.
type AudioSource interface {
	GenerateAudio(ctx context.Context, text string) <-chan []byte
}

// Sender is the outbound half of a transport.
type Sender interface {
	Send(frames.Frame) error
}

// LeadSink receives captured leads, e.g. for a confirmation email.
type LeadSink interface {
	SendLeadConfirmation(ctx context.Context, l lead.Lead) error
}

// CallInfo identifies one media stream.
type CallInfo struct {
	StreamSID  string
	CallSID    string
	TraceID    string
	FromNumber string
}

// Deps are the per-call collaborators. Transcriber and Responder hold
// call-scoped state and must not be shared between loops.
type Deps struct {
	Info        CallInfo
	Sender      Sender
	Transcriber stt.StreamingSTT
	Responder   Responder
	Audio       AudioSource
	Store       store.Store
	Leads       LeadSink
	Observer    metrics.Observer
}

// Loop relays one call: caller audio in, transcripts through the
// agent, synthesized replies out. Three goroutines cooperate per call
// and Close tears them all down exactly once.
type Loop struct {
	deps    Deps
	logger  *slog.Logger
	audioCh chan frames.AudioFrame

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func NewLoop(deps Deps) *Loop {
	if deps.Observer == nil {
		deps.Observer = metrics.NoopObserver{}
	}
	return &Loop{
		deps:    deps,
		logger:  logging.NewComponentLogger(slog.Default(), "relay"),
		audioCh: make(chan frames.AudioFrame, 256),
	}
}

// Start connects the transcriber and launches the relay goroutines.
func (l *Loop) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l.ctx, l.cancel = context.WithCancel(ctx)

	if err := l.deps.Store.LogCallStart(l.ctx, store.CallStart{
		StreamSID:  l.deps.Info.StreamSID,
		CallSID:    l.deps.Info.CallSID,
		FromNumber: l.deps.Info.FromNumber,
		StartTime:  time.Now().UTC(),
	}); err != nil {
		l.logger.Error("call start not persisted", "stream_id", l.deps.Info.StreamSID, "error", err)
	}

	if err := l.deps.Transcriber.Start(l.ctx); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}

	l.wg.Add(2)
	go l.inbound()
	go l.outbound()

	l.deps.Observer.RecordEvent(metrics.MetricsEvent{
		Name: "relay.call_start",
		Time: time.Now(),
		Tags: map[string]string{"stream_id": l.deps.Info.StreamSID},
	})
	return nil
}

// HandleAudio feeds one caller audio frame into the loop. Drops when
// the loop is saturated or already closing; Twilio keeps streaming
// regardless.
func (l *Loop) HandleAudio(f frames.AudioFrame) {
	if l.ctx == nil {
		return
	}
	select {
	case <-l.ctx.Done():
	case l.audioCh <- f:
	default:
	}
}

// Close tears the loop down. Safe to call from any goroutine and any
// number of times; only the first reason wins.
func (l *Loop) Close(reason string) {
	l.once.Do(func() {
		if l.cancel != nil {
			l.cancel()
		}
		if err := l.deps.Transcriber.Close(); err != nil {
			l.logger.Warn("transcriber close", "stream_id", l.deps.Info.StreamSID, "error", err)
		}
		l.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.deps.Store.EndCall(ctx, l.deps.Info.StreamSID, reason); err != nil {
			l.logger.Error("call end not persisted", "stream_id", l.deps.Info.StreamSID, "error", err)
		}
		l.deps.Observer.RecordEvent(metrics.MetricsEvent{
			Name: "relay.call_end",
			Time: time.Now(),
			Tags: map[string]string{
				"stream_id": l.deps.Info.StreamSID,
				"reason":    reason,
			},
		})
		l.logger.Info("call closed", "stream_id", l.deps.Info.StreamSID, "reason", reason)
	})
}

// inbound pumps caller audio into the transcriber.
func (l *Loop) inbound() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case f := <-l.audioCh:
			err := l.deps.Transcriber.SendAudio(f)
			frames.ReleaseAudioFrame(f)
			if err != nil {
				if l.ctx.Err() != nil {
					return
				}
				l.logger.Warn("audio not accepted by transcriber",
					"stream_id", l.deps.Info.StreamSID,
					"reason", errorsx.Reason(err),
					"error", err,
				)
			}
		}
	}
}

// outbound consumes final transcripts and runs one turn at a time.
// The channel closing means the transcriber is gone and the loop's
// talking half is done.
func (l *Loop) outbound() {
	defer l.wg.Done()
	for f := range l.deps.Transcriber.Results() {
		tf, ok := f.(frames.TextFrame)
		if !ok || !tf.IsFinal() {
			continue
		}
		text := strings.TrimSpace(tf.Text())
		if text == "" {
			continue
		}
		l.handleTurn(text)
		if l.ctx.Err() != nil {
			return
		}
	}
}

// handleTurn runs the full user-to-assistant exchange for one final
// transcript: persist, generate, persist, speak.
func (l *Loop) handleTurn(userText string) {
	info := l.deps.Info
	turnStart := time.Now()

	l.logTurn(store.DirectionUser, userText)
	l.logger.Info("caller said", "stream_id", info.StreamSID, "text", redact.Text(userText))

	reply, capture := l.deps.Responder.GenerateResponse(l.ctx, userText)

	l.logTurn(store.DirectionAssistant, reply)
	l.logger.Info("assistant replied", "stream_id", info.StreamSID, "text", redact.Text(reply))

	if capture != nil {
		l.captureLead(*capture)
	}
	l.speak(reply)

	l.deps.Observer.RecordEvent(metrics.MetricsEvent{
		Name:  "relay.turn",
		Time:  time.Now(),
		Value: float64(time.Since(turnStart).Milliseconds()),
		Tags:  map[string]string{"stream_id": info.StreamSID},
	})
}

func (l *Loop) logTurn(direction, text string) {
	err := l.deps.Store.LogCallTurn(l.ctx, store.Turn{
		StreamSID: l.deps.Info.StreamSID,
		Direction: direction,
		Text:      text,
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]string{frames.MetaTraceID: l.deps.Info.TraceID},
	})
	if err != nil {
		l.logger.Error("turn not persisted",
			"stream_id", l.deps.Info.StreamSID,
			"direction", direction,
			"error", err,
		)
	}
}

func (l *Loop) captureLead(capture lead.Capture) {
	info := l.deps.Info
	if err := l.deps.Store.LogLeadInfo(l.ctx, info.StreamSID, capture.Lead); err != nil {
		l.logger.Error("lead not persisted", "stream_id", info.StreamSID, "error", err)
	}
	l.logger.Info("lead captured",
		"stream_id", info.StreamSID,
		"action", capture.Action,
		"contact", redact.Text(capture.Lead.Contact),
	)
	l.deps.Observer.RecordEvent(metrics.MetricsEvent{
		Name: "relay.lead_captured",
		Time: time.Now(),
		Tags: map[string]string{"stream_id": info.StreamSID},
	})
	if l.deps.Leads != nil {
		if err := l.deps.Leads.SendLeadConfirmation(l.ctx, capture.Lead); err != nil {
			l.logger.Warn("lead confirmation not sent",
				"stream_id", info.StreamSID,
				"reason", errorsx.Reason(err),
				"error", err,
			)
		}
	}
}

// speak streams synthesized audio back over the transport.
func (l *Loop) speak(text string) {
	info := l.deps.Info
	for chunk := range l.deps.Audio.GenerateAudio(l.ctx, text) {
		if l.ctx.Err() != nil {
			return
		}
		meta := map[string]string{
			frames.MetaStreamID: info.StreamSID,
			frames.MetaCallSID:  info.CallSID,
			frames.MetaTraceID:  info.TraceID,
			frames.MetaSource:   "tts",
		}
		af := frames.NewAudioFrame(info.StreamSID, time.Now().UnixNano(), chunk, 8000, 1, meta)
		if err := l.deps.Sender.Send(af); err != nil {
			l.logger.Warn("outbound audio dropped",
				"stream_id", info.StreamSID,
				"reason", errorsx.Reason(err),
				"error", err,
			)
			return
		}
	}
}

// SpeakText synthesizes and sends arbitrary text, used for the greeting
// on streams the webhook's TwiML did not already greet.
func (l *Loop) SpeakText(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.speak(text)
	}()
}
