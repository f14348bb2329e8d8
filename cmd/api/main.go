package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgate.org/internal/account"
	"authgate.org/internal/config"
	"authgate.org/internal/httpapi"
	"authgate.org/internal/obs"
	"authgate.org/internal/session"
	"authgate.org/internal/store/pg"
	"authgate.org/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo("authgate-api", version)
	logger := obs.Logger()

	cfg, err := config.Load(true)
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

	var sessions session.Store
	if cfg.RedisURL != "" {
		sessions, err = session.NewRedisStore(startCtx, cfg.RedisURL, "authgate")
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
	} else {
		logger.Warn().Msg("AUTHGATE_REDIS_URL not set, using in-memory sessions")
		sessions = session.NewMemoryStore()
	}
	defer sessions.Close()

	accounts, err := account.NewService(store)
	if err != nil {
		logger.Fatal().Err(err).Msg("accounts")
	}
	issuer, err := token.NewIssuer(cfg.Secret, cfg.Issuer, cfg.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("issuer")
	}

	api, err := httpapi.New(httpapi.Options{
		Accounts:      accounts,
		Sessions:      sessions,
		Issuer:        issuer,
		SessionTTL:    cfg.SessionTTL,
		MaxFailures:   cfg.MaxLoginFailures,
		LockoutWindow: cfg.LockoutWindow,
		CORSOrigins:   cfg.CORSOrigins,
		Ready:         store.DB().PingContext,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("httpapi")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting authgate-api")

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
