// Package reporting forwards failures to Sentry.
package reporting

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/knolabs/daela/pkg/errorsx"
)

type Config struct {
	DSN              string  `mapstructure:"dsn"`
	Environment      string  `mapstructure:"environment"`
	Release          string  `mapstructure:"release"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// Reporter captures errors on its own hub. The zero value and a nil
// *Reporter are disabled.
type Reporter struct {
	hub *sentry.Hub
}

// New builds a reporter. An empty DSN yields a disabled reporter.
func New(cfg Config, logger *slog.Logger) (*Reporter, error) {
	return newWithOptions(cfg, nil, logger)
}

func newWithOptions(cfg Config, beforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event, logger *slog.Logger) (*Reporter, error) {
	if cfg.DSN == "" {
		return &Reporter{}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		EnableTracing:    cfg.TracesSampleRate > 0,
		TracesSampleRate: cfg.TracesSampleRate,
		BeforeSend:       beforeSend,
	})
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("sentry_initialized", "environment", cfg.Environment)
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *Reporter) Enabled() bool { return r != nil && r.hub != nil }

// Report captures err tagged with its reason code and the given tags.
func (r *Reporter) Report(ctx context.Context, err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("reason", string(errorsx.Reason(err)))
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		r.hub.CaptureException(err)
	})
}

func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}

// Recover reports handler panics and answers 500.
func (r *Reporter) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if r.Enabled() {
					hub := r.hub.Clone()
					hub.Scope().SetRequest(req)
					hub.RecoverWithContext(req.Context(), err)
					hub.Flush(2 * time.Second)
				}
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}
