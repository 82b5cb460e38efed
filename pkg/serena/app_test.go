package serena

import (
	"testing"
)

func mockConfig() Config {
	return Config{
		Environment: "test",
		LogLevel:    "error",
		LogFormat:   "text",
		Transports:  TransportsConfig{Provider: "mock"},
		Vendors: VendorsConfig{
			STT: VendorConfig{Provider: "mock"},
			TTS: VendorConfig{Provider: "mock"},
			LLM: VendorConfig{Provider: "mock"},
		},
		Agent: AgentConfig{MaxHistory: 10, TimeoutMS: 1000},
	}
}

func TestNewAppWithMockProviders(t *testing.T) {
	app, err := NewApp(mockConfig())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if app.transport == nil || app.manager == nil || app.store == nil {
		t.Fatal("app wiring incomplete")
	}
	if app.transport.Name() != "mock" {
		t.Fatalf("unexpected transport: %q", app.transport.Name())
	}
}

func TestNewAppRejectsUnknownTransport(t *testing.T) {
	cfg := mockConfig()
	cfg.Transports.Provider = "carrier-pigeon"
	if _, err := NewApp(cfg); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestNewAppRequiresVendorCredentials(t *testing.T) {
	cfg := mockConfig()
	cfg.Vendors.STT = VendorConfig{Provider: "deepgram"}
	if _, err := NewApp(cfg); err == nil {
		t.Fatal("expected error for deepgram without api key")
	}

	cfg = mockConfig()
	cfg.Vendors.TTS = VendorConfig{
		Provider: "elevenlabs",
		Settings: map[string]any{"api_key": "k"},
	}
	if _, err := NewApp(cfg); err == nil {
		t.Fatal("expected error for elevenlabs without voice id")
	}

	cfg = mockConfig()
	cfg.Vendors.LLM = VendorConfig{Provider: "openai"}
	if _, err := NewApp(cfg); err == nil {
		t.Fatal("expected error for openai without api key")
	}
}
