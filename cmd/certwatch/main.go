package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/certwatch/internal/config"
	"github.com/hamed0406/certwatch/internal/httpapi"
	"github.com/hamed0406/certwatch/internal/logging"
	"github.com/hamed0406/certwatch/internal/notify"
	"github.com/hamed0406/certwatch/internal/probe"
	"github.com/hamed0406/certwatch/internal/repo"
	"github.com/hamed0406/certwatch/internal/repo/file"
	"github.com/hamed0406/certwatch/internal/repo/memory"
	"github.com/hamed0406/certwatch/internal/repo/postgres"
	"github.com/hamed0406/certwatch/internal/repo/sqlite"
	"github.com/hamed0406/certwatch/internal/scheduler"
	"github.com/hamed0406/certwatch/internal/state"
	"github.com/hamed0406/certwatch/internal/targets"
)

const firstCycleWait = 2 * time.Minute

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	history, closeHistory, err := openHistory(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("history_open_failed", zap.String("store", cfg.HistoryStore), zap.Error(err))
	}

	sinks := notify.NewMulti(
		notify.NewTeams(cfg.TeamsWebhook, cfg.AlertDays),
		notify.NewSlack(cfg.SlackWebhook),
	)
	alerter := scheduler.NewAlerter(logger, history, sinks, scheduler.AlerterConfig{Threshold: cfg.AlertDays})
	alerter.Load(ctx)
	if !alerter.Configured() {
		logger.Warn("no_webhook_configured")
	}

	st := state.New()
	sched := scheduler.NewScheduler(
		logger,
		targets.NewFile(cfg.SitesFile),
		probe.NewTLSProber(logger, cfg.ProbeTimeout),
		st,
		alerter,
		cfg.CheckInterval,
		cfg.MaxWorkers,
	)
	logger.Info("certwatch_starting",
		zap.String("sites_file", cfg.SitesFile),
		zap.String("history_store", cfg.HistoryStore),
		zap.Int("alert_days", cfg.AlertDays),
		zap.Duration("interval", cfg.CheckInterval),
	)
	go sched.Run(ctx)

	select {
	case <-st.Ready():
	case <-time.After(firstCycleWait):
		logger.Warn("first_cycle_slow", zap.Duration("waited", firstCycleWait))
	case <-ctx.Done():
		_ = closeHistory()
		return
	}

	api := httpapi.NewServer(logger, st, alerter, httpapi.Options{
		CheckInterval: cfg.CheckInterval,
		TestKey:       cfg.TestKey,
		TestCooldown:  cfg.TestCooldown,
		Sites:         func() int { return len(sched.Targets()) },
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("api_listen", zap.String("addr", cfg.Addr))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
		}
	case <-ctx.Done():
	}

	logger.Info("shutting_down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := multierr.Combine(srv.Shutdown(sctx), closeHistory()); err != nil {
		logger.Warn("shutdown_error", zap.Error(err))
	}
}

func openHistory(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.AlertHistory, func() error, error) {
	noop := func() error { return nil }
	switch cfg.HistoryStore {
	case "", "file":
		s, err := file.New(cfg.HistoryPath())
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.HistoryPath())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("HISTORY_STORE=postgres needs DATABASE_URL")
		}
		s, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { s.Close(); return nil }, nil
	case "memory":
		logger.Warn("history_in_memory", zap.String("note", "alert history is lost on restart"))
		return memory.New(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown HISTORY_STORE %q", cfg.HistoryStore)
	}
}
