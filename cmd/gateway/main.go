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
	"authgate.org/internal/gateway"
	"authgate.org/internal/obs"
	"authgate.org/internal/session"
	"authgate.org/internal/token"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo("authgate-gateway", version)
	logger := obs.Logger()

	cfg, err := config.Load(true)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancelStart()

	var sessions session.Store
	if cfg.RedisURL != "" {
		sessions, err = session.NewRedisStore(startCtx, cfg.RedisURL, "authgate")
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
	} else {
		// Without Redis the gateway cannot see sessions created by the auth
		// service; acceptable only when both run in one process during
		// development.
		logger.Warn().Msg("AUTHGATE_REDIS_URL not set, using in-memory sessions")
		sessions = session.NewMemoryStore()
	}
	defer sessions.Close()

	issuer, err := token.NewIssuer(cfg.Secret, cfg.Issuer, cfg.TokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("issuer")
	}

	gw, err := gateway.New(gateway.Options{
		Issuer:       issuer,
		Sessions:     sessions,
		SessionTTL:   cfg.SessionTTL,
		ProxyTimeout: cfg.ProxyTimeout,
		CORSOrigins:  cfg.CORSOrigins,
		Routes: []gateway.Route{
			{
				Name:   "auth",
				Prefix: "/auth",
				Target: cfg.AuthURL,
				Public: true,
			},
			{
				Name:   "calculator",
				Prefix: "/calculator",
				Target: cfg.CalculatorURL,
				App:    "calculator",

				StripPrefix: true,
			},
			{
				Name:   "dashboard",
				Prefix: "/dashboard",
				Target: cfg.DashboardURL,
				App:    dashboard.AppName,

				StripPrefix: true,
				PathPermissions: map[string]string{
					"/api/upload": dashboard.PermUpload,
				},
			},
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("gateway")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           gw.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Str("version", version).Str("addr", srv.Addr).Msg("starting authgate-gateway")

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
