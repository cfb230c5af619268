// Package config loads the agent's YAML configuration.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/knolabs/daela/pkg/crm"
	"github.com/knolabs/daela/pkg/functions"
	"github.com/knolabs/daela/pkg/reporting"
)

// ProviderNone disables an optional vendor or the handoff leg.
const ProviderNone = "none"

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

// Enabled reports whether a provider was chosen.
func (v VendorConfig) Enabled() bool {
	p := strings.ToLower(strings.TrimSpace(v.Provider))
	return p != "" && p != ProviderNone
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

type HandoffConfig struct {
	Provider        string         `mapstructure:"provider"`
	PhoneNumber     string         `mapstructure:"phone_number"`
	IdentityPrefix  string         `mapstructure:"identity_prefix"`
	ParticipantName string         `mapstructure:"participant_name"`
	Settings        map[string]any `mapstructure:"settings"`
}

func (h HandoffConfig) Vendor() VendorConfig {
	return VendorConfig{Provider: h.Provider, Settings: h.Settings}
}

type FollowUpConfig struct {
	Delay time.Duration `mapstructure:"delay"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type EventLogConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	Buffer      int    `mapstructure:"buffer"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type Config struct {
	Environment   string           `mapstructure:"environment"`
	LogLevel      string           `mapstructure:"log_level"`
	LogFormat     string           `mapstructure:"log_format"`
	Profile       string           `mapstructure:"profile"`
	Vendors       VendorsConfig    `mapstructure:"vendors"`
	Room          VendorConfig     `mapstructure:"room"`
	Handoff       HandoffConfig    `mapstructure:"handoff"`
	CRM           crm.Config       `mapstructure:"crm"`
	FollowUp      FollowUpConfig   `mapstructure:"followup"`
	GreetingDelay time.Duration    `mapstructure:"greeting_delay"`
	HelpPhrase    string           `mapstructure:"help_phrase"`
	Server        ServerConfig     `mapstructure:"server"`
	EventLog      EventLogConfig   `mapstructure:"eventlog"`
	Sentry        reporting.Config `mapstructure:"sentry"`
	Privacy       PrivacyConfig    `mapstructure:"privacy"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("profile", functions.ProfileDentalCRM)
	v.SetDefault("vendors.llm.provider", "openai")
	v.SetDefault("vendors.llm.settings.model", "gpt-4o-mini")
	v.SetDefault("vendors.stt.provider", ProviderNone)
	v.SetDefault("vendors.tts.provider", ProviderNone)
	v.SetDefault("room.provider", "livekit")
	v.SetDefault("handoff.provider", ProviderNone)
	v.SetDefault("handoff.identity_prefix", "sip_")
	v.SetDefault("handoff.participant_name", "Human Agent")
	v.SetDefault("crm.timezone", "Europe/London")
	v.SetDefault("crm.booked_tag", "livekit_appointment_booked")
	v.SetDefault("crm.new_patient_tag", "new_dental_patient")
	v.SetDefault("crm.timeout", "10s")
	v.SetDefault("followup.delay", "20s")
	v.SetDefault("greeting_delay", "1s")
	v.SetDefault("help_phrase", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("eventlog.database_url", "")
	v.SetDefault("eventlog.buffer", 1024)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.traces_sample_rate", 1.0)
	v.SetDefault("privacy.redact_pii", true)
}

// Load reads path, applies defaults, expands ${ENV} references in every
// string value and validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if cfg.Sentry.Environment == "" {
		cfg.Sentry.Environment = cfg.Environment
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := functions.LookupProfile(c.Profile); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if !c.Vendors.LLM.Enabled() {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	if !c.Room.Enabled() {
		return fmt.Errorf("room.provider is required")
	}
	if c.Handoff.Vendor().Enabled() && strings.TrimSpace(c.Handoff.PhoneNumber) == "" {
		return fmt.Errorf("handoff.phone_number is required")
	}
	if c.FollowUp.Delay < 0 {
		return fmt.Errorf("followup.delay must not be negative")
	}
	return nil
}

// ResolvedProfile returns the configured profile with the help phrase
// override applied.
func (c Config) ResolvedProfile() (functions.Profile, error) {
	p, err := functions.LookupProfile(c.Profile)
	if err != nil {
		return functions.Profile{}, err
	}
	if phrase := strings.TrimSpace(c.HelpPhrase); phrase != "" {
		p.HelpPhrase = phrase
	}
	return p, nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Room.Settings = expandSettings(cfg.Room.Settings)
	cfg.Handoff.Settings = expandSettings(cfg.Handoff.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
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
		return expandSettings(val)
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			expandValue(v.Elem())
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
