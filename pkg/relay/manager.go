package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/harunnryd/serena/pkg/frames"
	"github.com/harunnryd/serena/pkg/logging"
	"github.com/harunnryd/serena/pkg/transports"
)

// LoopFactory builds a fresh loop for one call. Implementations wire a
// new transcriber and responder so no state leaks between calls.
type LoopFactory func(info CallInfo) (*Loop, error)

// Manager consumes the transport's frame stream and owns the lifecycle
// of one Loop per active media stream.
type Manager struct {
	transport transports.Transport
	factory   LoopFactory
	greeting  string
	logger    *slog.Logger

	mu    sync.Mutex
	loops map[string]*Loop

	done chan struct{}
}

// ManagerConfig tunes per-call behavior.
type ManagerConfig struct {
	// SpokenGreeting, when set, is synthesized at stream start. Leave
	// empty when the voice webhook already greets via TwiML.
	SpokenGreeting string
}

func NewManager(transport transports.Transport, factory LoopFactory, cfg ManagerConfig) *Manager {
	return &Manager{
		transport: transport,
		factory:   factory,
		greeting:  cfg.SpokenGreeting,
		logger:    logging.NewComponentLogger(slog.Default(), "relay_manager"),
		loops:     make(map[string]*Loop),
		done:      make(chan struct{}),
	}
}

// Run dispatches frames until the transport's channel closes or ctx is
// cancelled, then closes every remaining loop.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	defer m.closeAll("shutdown")
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-m.transport.Recv():
			if !ok {
				return
			}
			m.dispatch(ctx, f)
		}
	}
}

// Done is closed once Run has returned and all loops are torn down.
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) dispatch(ctx context.Context, f frames.Frame) {
	switch f.Kind() {
	case frames.KindAudio:
		af := f.(frames.AudioFrame)
		if loop := m.loop(af.Meta()[frames.MetaStreamID]); loop != nil {
			loop.HandleAudio(af)
		}
	case frames.KindSystem:
		sf := f.(frames.SystemFrame)
		meta := sf.Meta()
		switch sf.Name() {
		case frames.SystemCallStart:
			m.startLoop(ctx, sf)
		case frames.SystemCallEnd:
			reason := meta[frames.MetaCallEndReason]
			if reason == "" {
				reason = "completed"
			}
			m.endLoop(meta[frames.MetaStreamID], reason)
		case frames.SystemCallReconnect:
			if old := meta[frames.MetaOldStreamID]; old != "" {
				m.endLoop(old, "reconnected")
			}
		}
	}
}

func (m *Manager) startLoop(ctx context.Context, sf frames.SystemFrame) {
	meta := sf.Meta()
	info := CallInfo{
		StreamSID:  meta[frames.MetaStreamID],
		CallSID:    meta[frames.MetaCallSID],
		TraceID:    meta[frames.MetaTraceID],
		FromNumber: meta[frames.MetaFromNumber],
	}
	if info.StreamSID == "" {
		return
	}

	m.mu.Lock()
	if _, exists := m.loops[info.StreamSID]; exists {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	loop, err := m.factory(info)
	if err != nil {
		m.logger.Error("loop not created", "stream_id", info.StreamSID, "error", err)
		return
	}
	if err := loop.Start(ctx); err != nil {
		m.logger.Error("loop not started", "stream_id", info.StreamSID, "error", err)
		loop.Close("start_failed")
		return
	}

	m.mu.Lock()
	m.loops[info.StreamSID] = loop
	m.mu.Unlock()

	m.logger.Info("call started",
		"stream_id", info.StreamSID,
		"call_sid", info.CallSID,
		"trace_id", info.TraceID,
	)
	if m.greeting != "" {
		loop.SpeakText(m.greeting)
	}
}

func (m *Manager) endLoop(streamID, reason string) {
	m.mu.Lock()
	loop := m.loops[streamID]
	delete(m.loops, streamID)
	m.mu.Unlock()
	if loop != nil {
		loop.Close(reason)
	}
}

func (m *Manager) loop(streamID string) *Loop {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loops[streamID]
}

// Active reports how many calls are currently live.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loops)
}

func (m *Manager) closeAll(reason string) {
	m.mu.Lock()
	loops := make([]*Loop, 0, len(m.loops))
	for _, loop := range m.loops {
		loops = append(loops, loop)
	}
	m.loops = make(map[string]*Loop)
	m.mu.Unlock()
	for _, loop := range loops {
		loop.Close(reason)
	}
}
