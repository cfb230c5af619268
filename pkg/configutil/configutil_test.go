package configutil

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type sampleSettings struct {
	APIKey  string        `mapstructure:"api_key"`
	Voice   string        `mapstructure:"voice"`
	Timeout time.Duration `mapstructure:"timeout"`
	Stream  *bool         `mapstructure:"stream"`
}

func TestDecodeSettingsNormalizesKeys(t *testing.T) {
	var out sampleSettings
	err := DecodeSettings(map[string]any{
		"API-Key": "sk-1",
		"voice":   "alloy",
		"timeout": "15s",
		"stream":  "true",
	}, &out)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out.APIKey != "sk-1" || out.Voice != "alloy" {
		t.Fatalf("unexpected decode %+v", out)
	}
	if out.Timeout != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", out.Timeout)
	}
	if !BoolValue(out.Stream, false) {
		t.Fatalf("expected stream true")
	}
}

func TestValidateSettingsReportsMissingAndUnknown(t *testing.T) {
	schema := Schema{Required: []string{"api_key"}, Optional: []string{"voice"}}
	err := ValidateSettings(map[string]any{"voice": "alloy", "colour": "red"}, schema)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var se *SettingsError
	if !errors.As(err, &se) {
		t.Fatalf("expected SettingsError, got %T", err)
	}
	if len(se.Missing) != 1 || se.Missing[0] != "api_key" || len(se.Unknown) != 1 || se.Unknown[0] != "colour" {
		t.Fatalf("unexpected settings error %+v", se)
	}
	if !strings.Contains(err.Error(), "missing required setting(s) api_key") || !strings.Contains(err.Error(), "unrecognised setting(s) colour") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err := ValidateSettings(map[string]any{"api_key": "  "}, schema); err == nil {
		t.Fatalf("expected blank api_key to count as missing")
	}
	if err := ValidateSettings(map[string]any{"apiKey": "x"}, schema); err != nil {
		t.Fatalf("expected normalized key to pass, got %v", err)
	}
}

func TestFallbackHelpers(t *testing.T) {
	if IntValue(nil, 3) != 3 {
		t.Fatalf("expected fallback int")
	}
	if DurationValue(0, time.Second) != time.Second {
		t.Fatalf("expected fallback duration")
	}
	if err := RequireString(" ", "crm.api_token"); err == nil || err.Error() != "crm.api_token is required" {
		t.Fatalf("unexpected error %v", err)
	}
}
