// Package eventlog persists session events to Postgres.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knolabs/daela/pkg/errorsx"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_events (
	id          BIGSERIAL PRIMARY KEY,
	call_id     TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	event_data  JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS call_events_call_id_idx ON call_events (call_id);
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Logger writes events to the call_events table. It is a metrics.Observer;
// wrap it in metrics.AsyncObserver to keep writes off the session path.
type Logger struct {
	db      execer
	timeout time.Duration
	log     *slog.Logger
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Logger {
	l := &Logger{timeout: 2 * time.Second, log: logging.NewComponentLogger(logger, "eventlog")}
	if db != nil {
		l.db = db
	}
	return l
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventlog: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the events table if it is missing.
func (l *Logger) EnsureSchema(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	_, err := l.db.Exec(ctx, schema)
	return errorsx.Wrap(err, errorsx.ReasonEventLogWrite)
}

// Log writes one event synchronously.
func (l *Logger) Log(ctx context.Context, callID, eventType string, data map[string]any) error {
	if l.db == nil || callID == "" {
		return nil
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}
	_, err = l.db.Exec(ctx, `
		INSERT INTO call_events (call_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, callID, eventType, dataJSON)
	return errorsx.Wrap(err, errorsx.ReasonEventLogWrite)
}

func (l *Logger) RecordEvent(ev metrics.MetricsEvent) {
	callID := ev.Tags["session_id"]
	data := make(map[string]any, len(ev.Tags)+len(ev.Fields)+1)
	for k, v := range ev.Tags {
		if k != "session_id" {
			data[k] = v
		}
	}
	for k, v := range ev.Fields {
		data[k] = v
	}
	if ev.Value != 0 {
		data["value"] = ev.Value
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.Log(ctx, callID, ev.Name, data); err != nil {
		l.log.Warn("eventlog_write_failed", "event", ev.Name, "error", err)
	}
}

var _ metrics.Observer = (*Logger)(nil)
