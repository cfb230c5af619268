package reporting

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"

	"github.com/knolabs/daela/pkg/errorsx"
)

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(ev *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *captured) Events() []*sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sentry.Event(nil), c.events...)
}

func TestReportTagsReason(t *testing.T) {
	c := &captured{}
	r, err := newWithOptions(Config{DSN: "https://public@example.com/1"}, c.beforeSend, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	err = errorsx.Wrap(errors.New("sip trunk busy"), errorsx.ReasonEscalationDial)
	r.Report(context.Background(), err, map[string]string{"room": "room-1"})

	events := c.Events()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if events[0].Tags["reason"] != "escalation_dial" || events[0].Tags["room"] != "room-1" {
		t.Fatalf("unexpected tags %v", events[0].Tags)
	}
}

func TestDisabledReporterIsNoop(t *testing.T) {
	r, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if r.Enabled() {
		t.Fatalf("expected disabled reporter")
	}
	r.Report(context.Background(), errors.New("x"), nil)
	if !r.Flush(0) {
		t.Fatalf("expected flush on disabled reporter to succeed")
	}
	var nilReporter *Reporter
	nilReporter.Report(context.Background(), errors.New("x"), nil)
}

func TestRecoverAnswers500(t *testing.T) {
	c := &captured{}
	r, _ := newWithOptions(Config{DSN: "https://public@example.com/1"}, c.beforeSend, nil)
	h := r.Recover(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dispatch", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if len(c.Events()) != 1 {
		t.Fatalf("expected panic captured")
	}
}
