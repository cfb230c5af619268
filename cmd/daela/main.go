// Command daela runs the dental assistant worker. It joins the rooms given
// with -room at startup and any room later posted to /dispatch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knolabs/daela/pkg/agent"
	"github.com/knolabs/daela/pkg/config"
	"github.com/knolabs/daela/pkg/crm"
	"github.com/knolabs/daela/pkg/eventlog"
	"github.com/knolabs/daela/pkg/logging"
	"github.com/knolabs/daela/pkg/metrics"
	"github.com/knolabs/daela/pkg/redact"
	"github.com/knolabs/daela/pkg/reporting"
	"github.com/knolabs/daela/pkg/runner"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "daela:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	rooms := flag.String("room", "", "comma-separated rooms to join at startup")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(runner.Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	reporter, err := reporting.New(cfg.Sentry, logger)
	if err != nil {
		logger.Warn("sentry_init_failed", "error", err)
		reporter = &reporting.Reporter{}
	}
	defer reporter.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observers := []metrics.Observer{metrics.NewLoggerObserver(logger)}
	var pool *pgxpool.Pool
	if dsn := strings.TrimSpace(cfg.EventLog.DatabaseURL); dsn != "" {
		pool, err = eventlog.Open(ctx, dsn)
		if err != nil {
			return err
		}
		defer pool.Close()
		events := eventlog.New(pool, logger)
		if err := events.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("eventlog schema: %w", err)
		}
		observers = append(observers, events)
	}
	obs := metrics.NewAsyncObserver(metrics.NewMultiObserver(observers...), cfg.EventLog.Buffer)
	defer func() {
		obs.Close()
		obs.Wait()
	}()

	providers := agent.NewProviderRegistry()
	registerProviders(providers, obs, logger)

	worker, err := agent.New(agent.Options{
		Config:    cfg,
		Providers: providers,
		CRM:       crm.NewClient(cfg.CRM, nil),
		Observer:  obs,
		Reporter:  reporter,
		Logger:    logger,
	})
	if err != nil {
		reporter.Report(ctx, err, map[string]string{"stage": "init"})
		return err
	}

	lifecycle := runner.NewLifecycleRunner(worker, runner.Hooks{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := worker.Serve(ctx, cfg.Server.Addr, worker.Handler(reporter.Recover)); err != nil {
					logger.Error("http_server_failed", "error", err)
					stop()
				}
			}()
			for _, name := range splitRooms(*rooms) {
				if _, _, err := worker.Dispatch(ctx, name); err != nil {
					return fmt.Errorf("join %s: %w", name, err)
				}
			}
			return nil
		},
		OnStop: func() {
			logger.Info("daela_stopped", slog.Int("sessions", worker.Count()))
		},
	}, 15*time.Second)
	lifecycle.Banner = os.Stdout

	if err := lifecycle.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func splitRooms(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
