package redact

import (
	"strings"
	"testing"
)

func TestRedactDisabled(t *testing.T) {
	SetEnabled(false)
	in := "my email is bob@example.com, call +44 7700 900123"
	if got := Text(in); got != in {
		t.Fatalf("expected no redaction, got %q", got)
	}
	if got := Email("bob@example.com"); got != "bob@example.com" {
		t.Fatalf("expected raw email, got %q", got)
	}
}

func TestRedactText(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	got := Text("my email is bob@example.com, call +44 7700 900123")
	if strings.Contains(got, "bob@example.com") {
		t.Fatalf("email leaked: %q", got)
	}
	if !strings.Contains(got, "[REDACTED_PHONE]") {
		t.Fatalf("expected phone redaction, got %q", got)
	}
}

func TestRedactEmailAndPhone(t *testing.T) {
	SetEnabled(true)
	defer SetEnabled(false)
	if got := Email("bob@example.com"); got != "b***@example.com" {
		t.Fatalf("unexpected email mask %q", got)
	}
	if got := Email("not-an-email"); got != "[REDACTED_EMAIL]" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := Phone("+447700900123"); got != "*********0123" {
		t.Fatalf("unexpected phone mask %q", got)
	}
}
