package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "profile: dental\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FollowUp.Delay != 20*time.Second {
		t.Fatalf("expected 20s follow-up delay, got %v", cfg.FollowUp.Delay)
	}
	if cfg.CRM.Timezone != "Europe/London" || cfg.CRM.BookedTag != "livekit_appointment_booked" {
		t.Fatalf("unexpected crm defaults %+v", cfg.CRM)
	}
	if cfg.Vendors.LLM.Provider != "openai" || cfg.Vendors.LLM.Settings["model"] != "gpt-4o-mini" {
		t.Fatalf("unexpected llm defaults %+v", cfg.Vendors.LLM)
	}
	if cfg.Vendors.TTS.Enabled() || cfg.Handoff.Vendor().Enabled() {
		t.Fatalf("expected tts and handoff disabled by default")
	}
	if !cfg.Privacy.RedactPII {
		t.Fatalf("expected pii redaction on by default")
	}
	if cfg.Sentry.Environment != "development" {
		t.Fatalf("expected sentry environment to follow environment, got %q", cfg.Sentry.Environment)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("DAELA_TEST_TOKEN", "tok-1")
	t.Setenv("DAELA_TEST_KEY", "sk-1")
	t.Setenv("DAELA_TEST_PHONE", "+447700900123")
	path := writeConfig(t, `
profile: dental_crm
crm:
  api_token: ${DAELA_TEST_TOKEN}
vendors:
  llm:
    provider: openai
    settings:
      api_key: ${DAELA_TEST_KEY}
handoff:
  provider: twilio
  phone_number: ${DAELA_TEST_PHONE}
  settings:
    account_sid: AC1
followup:
  delay: 5s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CRM.APIToken != "tok-1" {
		t.Fatalf("expected expanded token, got %q", cfg.CRM.APIToken)
	}
	if cfg.Vendors.LLM.Settings["api_key"] != "sk-1" {
		t.Fatalf("expected expanded api key, got %v", cfg.Vendors.LLM.Settings["api_key"])
	}
	if cfg.Handoff.PhoneNumber != "+447700900123" {
		t.Fatalf("expected expanded phone, got %q", cfg.Handoff.PhoneNumber)
	}
	if cfg.FollowUp.Delay != 5*time.Second {
		t.Fatalf("expected 5s delay, got %v", cfg.FollowUp.Delay)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown profile", "profile: plumbing\n", "unknown profile"},
		{"handoff without phone", "handoff:\n  provider: twilio\n", "handoff.phone_number is required"},
		{"llm disabled", "vendors:\n  llm:\n    provider: none\n", "vendors.llm.provider is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestResolvedProfileHelpPhraseOverride(t *testing.T) {
	cfg := Config{Profile: "dental_escalation", HelpPhrase: "agent please"}
	p, err := cfg.ResolvedProfile()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if p.HelpPhrase != "agent please" {
		t.Fatalf("expected override, got %q", p.HelpPhrase)
	}
}
