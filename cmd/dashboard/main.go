package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgate.org/internal/config"
	"authgate.org/internal/dashboard"
	"authgate.org/internal/obs"
	"authgate.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo("authgate-dashboard", version)
	logger := obs.Logger()

	cfg, err := config.Load(false)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if cfg.PGDSN == "" {
		logger.Fatal().Msg("AUTHGATE_PG_DSN must be set")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStart()

	store, err := pg.Open(startCtx, cfg.PGDSN, cfg.ConnectAttempts, cfg.ConnectBackoff)
	if err != nil {
		logger.Fatal().Err(err).Msg("database")
	}
	defer store.Close()

	server, err := dashboard.NewServer(dashboard.NewStore(store.DB()))
	if err != nil {
		logger.Fatal().Err(err).Msg("dashboard")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting authgate-dashboard")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	logger.Info().Msg("stopped")
}
