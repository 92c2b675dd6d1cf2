package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/ozone-monitor/db"
	"github.com/thatsimonsguy/ozone-monitor/internal/api"
	"github.com/thatsimonsguy/ozone-monitor/internal/client"
	"github.com/thatsimonsguy/ozone-monitor/internal/coerce"
	"github.com/thatsimonsguy/ozone-monitor/internal/commands"
	"github.com/thatsimonsguy/ozone-monitor/internal/config"
	"github.com/thatsimonsguy/ozone-monitor/internal/datadog"
	"github.com/thatsimonsguy/ozone-monitor/internal/engine"
	"github.com/thatsimonsguy/ozone-monitor/internal/env"
	"github.com/thatsimonsguy/ozone-monitor/internal/logging"
	"github.com/thatsimonsguy/ozone-monitor/internal/notifications"
	"github.com/thatsimonsguy/ozone-monitor/internal/poller"
	"github.com/thatsimonsguy/ozone-monitor/internal/store"
	"github.com/thatsimonsguy/ozone-monitor/system/shutdown"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("mode", cfg.Mode).
		Str("base_url", cfg.BaseURL).
		Str("state_backend", cfg.StateBackend).
		Msg("Starting ozone monitor")

	if err := coerce.SetLocale(cfg.Locale); err != nil {
		log.Warn().Err(err).Msg("Unknown locale, keeping default number format")
	}

	datadog.InitMetrics()
	shutdown.Register("metrics", func() error {
		datadog.Close()
		return nil
	})
	notifications.Init()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		shutdown.ShutdownWithError(err, "Failed to create data directory")
	}
	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open database")
	}
	shutdown.Register("database", conn.Close)

	kv, err := openStateStore(cfg, db.NewKV(conn))
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open cycle state store")
	}

	remote := client.New(cfg.BaseURL, &http.Client{
		Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	})
	eng := engine.New(kv)
	p := poller.New(remote, eng, poller.WithPeriod(time.Duration(cfg.PollIntervalMs)*time.Millisecond))

	commandLog := db.NewCommandLog(conn, cfg.CommandLogKeep)
	dispatcher := commands.NewDispatcher(remote, commands.WithRecorder(commandLog))
	server := api.NewServer(p, dispatcher, commandLog, uint32(cfg.DefaultPulseMs), cfg.AllowedOrigins)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p.Start(ctx)
	shutdown.Register("poller", func() error {
		p.Stop()
		return nil
	})

	go func() {
		if err := server.Start(ctx, cfg.ListenPort); err != nil {
			shutdown.ShutdownWithError(err, "API server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	shutdown.Shutdown()
}

func openStateStore(cfg config.Config, sqlite store.KV) (store.KV, error) {
	if cfg.StateBackend == config.BackendFile {
		return store.NewFile(cfg.StateFile)
	}
	return sqlite, nil
}
