package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
)

// SetEnabled toggles PII redaction for log attributes.
func SetEnabled(v bool) {
	enabled.Store(v)
}

func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails and phone numbers inside free text (chat lines,
// transcripts) when enabled.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Email keeps the first character of the local part and the domain, so
// operators can still correlate a booking in logs: b***@example.com.
func Email(email string) string {
	if !enabled.Load() {
		return email
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "[REDACTED_EMAIL]"
	}
	return email[:1] + "***" + email[at:]
}

// Phone keeps the last four digits.
func Phone(phone string) string {
	if !enabled.Load() {
		return phone
	}
	digits := strings.TrimSpace(phone)
	if len(digits) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
