package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromConfigAndEnv(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("AGENT_PHONE", "+447700900123")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "handoff:\n  phone_number: ${AGENT_PHONE}\n  settings:\n    account_sid: AC1\n    auth_token: tok\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, phone, err := load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccountSID != "AC1" || cfg.AuthToken != "tok" || phone != "+447700900123" {
		t.Fatalf("unexpected %+v %q", cfg, phone)
	}

	t.Setenv("TWILIO_ACCOUNT_SID", "AC2")
	cfg, phone, err = load(path, "+15550001111")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccountSID != "AC2" || phone != "+15550001111" {
		t.Fatalf("expected env and flag to win, got %+v %q", cfg, phone)
	}
}

func TestLoadRequiresPhone(t *testing.T) {
	if _, _, err := load("", ""); err == nil {
		t.Fatalf("expected missing phone error")
	}
}
