package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgate.org/internal/calc"
	"authgate.org/internal/config"
	"authgate.org/internal/obs"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo("authgate-calculator", version)
	logger := obs.Logger()

	cfg, err := config.Load(false)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           calc.NewServer().Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting authgate-calculator")

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
