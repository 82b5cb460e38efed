package serena

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/harunnryd/serena/pkg/adapters/stt"
	"github.com/harunnryd/serena/pkg/agent"
	"github.com/harunnryd/serena/pkg/configutil"
	"github.com/harunnryd/serena/pkg/email"
	"github.com/harunnryd/serena/pkg/llm"
	"github.com/harunnryd/serena/pkg/logging"
	"github.com/harunnryd/serena/pkg/metrics"
	"github.com/harunnryd/serena/pkg/providers/deepgram"
	"github.com/harunnryd/serena/pkg/providers/elevenlabs"
	"github.com/harunnryd/serena/pkg/providers/mock"
	"github.com/harunnryd/serena/pkg/providers/openai"
	"github.com/harunnryd/serena/pkg/redact"
	"github.com/harunnryd/serena/pkg/relay"
	"github.com/harunnryd/serena/pkg/runner"
	"github.com/harunnryd/serena/pkg/store"
	"github.com/harunnryd/serena/pkg/synthesis"
	"github.com/harunnryd/serena/pkg/transports"
	transportmock "github.com/harunnryd/serena/pkg/transports/mock"
	"github.com/harunnryd/serena/pkg/transports/twilio"
)

type sttSettings struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type ttsSettings struct {
	APIKey        string `mapstructure:"api_key"`
	VoiceID       string `mapstructure:"voice_id"`
	ModelID       string `mapstructure:"model_id"`
	LocalFallback bool   `mapstructure:"local_fallback"`
}

type llmSettings struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// App wires the transport, providers, relay, store and email service
// from one Config and runs them under a lifecycle runner.
type App struct {
	cfg       Config
	transport transports.Transport
	manager   *relay.Manager
	store     store.Store
	obs       metrics.Observer
	recent    *metrics.MemoryObserver
	logger    *slog.Logger

	metricsFile *os.File
}

func NewApp(cfg Config) (*App, error) {
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	app := &App{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "app"),
		recent: metrics.NewMemoryObserver(),
	}
	app.obs = app.recent

	if path := strings.TrimSpace(cfg.Metrics.JSONLPath); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open metrics file: %w", err)
		}
		app.metricsFile = f
		app.obs = metrics.NewMultiObserver(app.recent, metrics.NewJSONLObserver(f))
	}

	st, err := buildStore(cfg.Database)
	if err != nil {
		return nil, err
	}
	app.store = st

	transport, err := buildTransport(cfg.Transports)
	if err != nil {
		return nil, err
	}
	app.transport = transport

	adapter, err := buildLLM(cfg.Vendors.LLM)
	if err != nil {
		return nil, err
	}

	mailer := email.NewService(email.Config{
		Host:        cfg.Email.Host,
		Port:        cfg.Email.Port,
		Username:    cfg.Email.Username,
		Password:    cfg.Email.Password,
		From:        cfg.Email.From,
		CompanyName: cfg.Email.CompanyName,
	})

	factory, err := buildLoopFactory(cfg, transport, st, adapter, mailer, app.obs)
	if err != nil {
		return nil, err
	}
	app.manager = relay.NewManager(transport, factory, relay.ManagerConfig{
		SpokenGreeting: cfg.Agent.SpokenGreeting,
	})

	slog.Info("serena_init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"transport", cfg.Transports.Provider,
		"persistence", persistenceKind(cfg.Database),
	)
	return app, nil
}

// Run starts the transport and relay, then blocks until ctx is
// cancelled and everything has drained.
func (a *App) Run(ctx context.Context) error {
	if err := a.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	go a.manager.Run(ctx)

	if reporter, ok := a.transport.(transports.ReadyReporter); ok {
		args := []any{"transport", a.transport.Name()}
		for k, v := range reporter.ReadyFields() {
			args = append(args, k, v)
		}
		a.logger.Info("ready", args...)
	}

	lr := runner.NewLifecycleRunner(a, runner.Hooks{
		OnStop: func() {
			a.logger.Info("metrics_summary", "events_recorded", a.recent.Count())
			if a.metricsFile != nil {
				_ = a.metricsFile.Close()
			}
		},
	}, 15*time.Second)
	return lr.Run(ctx)
}

// Drain stops the transport, which closes its frame channel and lets
// the relay manager finish the remaining calls.
func (a *App) Drain() error {
	err := a.transport.Stop()
	select {
	case <-a.manager.Done():
	case <-time.After(10 * time.Second):
	}
	return err
}

func buildStore(cfg DatabaseConfig) (store.Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.OpenPostgres(cfg.URL, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

func persistenceKind(cfg DatabaseConfig) string {
	if strings.TrimSpace(cfg.URL) == "" {
		return "memory"
	}
	return "postgres"
}

func buildTransport(cfg TransportsConfig) (transports.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "twilio":
		var tc twilio.Config
		if err := configutil.DecodeSettings(cfg.Settings, &tc); err != nil {
			return nil, fmt.Errorf("twilio settings: %w", err)
		}
		return twilio.New(tc), nil
	case "mock":
		return transportmock.New(), nil
	default:
		return nil, fmt.Errorf("transport provider not supported: %s", cfg.Provider)
	}
}

func buildLLM(cfg VendorConfig) (llm.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		var s llmSettings
		if err := configutil.DecodeSettings(cfg.Settings, &s); err != nil {
			return nil, fmt.Errorf("llm settings: %w", err)
		}
		if err := configutil.RequireString(s.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		return openai.NewAdapter(openai.Config{
			APIKey:  s.APIKey,
			Model:   s.Model,
			BaseURL: s.BaseURL,
		}), nil
	case "mock":
		return mock.NewLLMAdapter(mock.LLMConfig{}), nil
	default:
		return nil, fmt.Errorf("llm provider not supported: %s", cfg.Provider)
	}
}

func buildLoopFactory(
	cfg Config,
	sender relay.Sender,
	st store.Store,
	adapter llm.Adapter,
	mailer email.Sender,
	obs metrics.Observer,
) (relay.LoopFactory, error) {
	sttProvider := strings.ToLower(strings.TrimSpace(cfg.Vendors.STT.Provider))
	var sttCfg sttSettings
	if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &sttCfg); err != nil {
		return nil, fmt.Errorf("stt settings: %w", err)
	}
	if sttProvider == "deepgram" {
		if err := configutil.RequireString(sttCfg.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
	}

	ttsProvider := strings.ToLower(strings.TrimSpace(cfg.Vendors.TTS.Provider))
	var ttsCfg ttsSettings
	if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &ttsCfg); err != nil {
		return nil, fmt.Errorf("tts settings: %w", err)
	}
	if ttsProvider == "elevenlabs" {
		if err := configutil.RequireString(ttsCfg.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(ttsCfg.VoiceID, "vendors.tts.settings.voice_id"); err != nil {
			return nil, err
		}
	}

	newTranscriber := func(info relay.CallInfo) (stt.StreamingSTT, error) {
		switch sttProvider {
		case "deepgram":
			return deepgram.New(deepgram.Config{
				APIKey:   sttCfg.APIKey,
				Model:    sttCfg.Model,
				Language: sttCfg.Language,
				StreamID: info.StreamSID,
				CallSID:  info.CallSID,
				TraceID:  info.TraceID,
			}), nil
		case "mock":
			return mock.NewSTT(mock.STTConfig{
				StreamID: info.StreamSID,
				CallSID:  info.CallSID,
				TraceID:  info.TraceID,
			}), nil
		default:
			return nil, fmt.Errorf("stt provider not supported: %s", cfg.Vendors.STT.Provider)
		}
	}

	newSynth := func(info relay.CallInfo) (*synthesis.Engine, error) {
		switch ttsProvider {
		case "elevenlabs":
			client := elevenlabs.New(elevenlabs.Config{
				APIKey:   ttsCfg.APIKey,
				VoiceID:  ttsCfg.VoiceID,
				ModelID:  ttsCfg.ModelID,
				StreamID: info.StreamSID,
				CallSID:  info.CallSID,
			})
			return synthesis.NewEngine(client, synthesis.Config{LocalFallback: ttsCfg.LocalFallback}), nil
		case "mock":
			return synthesis.NewEngine(mock.NewSynthesizer(mock.TTSConfig{}), synthesis.Config{}), nil
		default:
			return nil, fmt.Errorf("tts provider not supported: %s", cfg.Vendors.TTS.Provider)
		}
	}

	return func(info relay.CallInfo) (*relay.Loop, error) {
		transcriber, err := newTranscriber(info)
		if err != nil {
			return nil, err
		}
		synth, err := newSynth(info)
		if err != nil {
			return nil, err
		}
		gen := agent.NewGenerator(adapter, agent.Config{
			SystemPrompt: cfg.Agent.Persona,
			MaxHistory:   cfg.Agent.MaxHistory,
			Timeout:      time.Duration(cfg.Agent.TimeoutMS) * time.Millisecond,
			StreamID:     info.StreamSID,
			CallSID:      info.CallSID,
		})
		gen.SetObserver(obs)
		return relay.NewLoop(relay.Deps{
			Info:        info,
			Sender:      sender,
			Transcriber: transcriber,
			Responder:   gen,
			Audio:       synth,
			Store:       st,
			Leads:       mailer,
			Observer:    obs,
		}), nil
	}, nil
}
