package serena

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFormat   string           `mapstructure:"log_format"`
	Transports  TransportsConfig `mapstructure:"transports"`
	Vendors     VendorsConfig    `mapstructure:"vendors"`
	Agent       AgentConfig      `mapstructure:"agent"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Email       EmailConfig      `mapstructure:"email"`
	Privacy     PrivacyConfig    `mapstructure:"privacy"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type AgentConfig struct {
	Persona        string `mapstructure:"persona"`
	SpokenGreeting string `mapstructure:"spoken_greeting"`
	MaxHistory     int    `mapstructure:"max_history"`
	TimeoutMS      int    `mapstructure:"timeout_ms"`
}

type DatabaseConfig struct {
	URL   string `mapstructure:"url"`
	Debug bool   `mapstructure:"debug"`
}

type EmailConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	From        string `mapstructure:"from"`
	CompanyName string `mapstructure:"company_name"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type MetricsConfig struct {
	JSONLPath string `mapstructure:"jsonl_path"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("agent.max_history", 20)
	v.SetDefault("agent.timeout_ms", 15000)
	v.SetDefault("email.port", 587)
	v.SetDefault("email.company_name", "Serena Properties")
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("metrics.jsonl_path", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.debug", false)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
