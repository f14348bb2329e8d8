// Package config loads service configuration from the environment.
// The signing secret is mandatory: processes refuse to start without it
// rather than falling back to a built-in value.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every recognized environment option. A single struct is
// shared by all binaries; each one reads the subset it needs.
type Config struct {
	Port   string
	Secret string
	Issuer string

	PGDSN    string
	RedisURL string

	TokenTTL   time.Duration
	SessionTTL time.Duration

	MaxLoginFailures int
	LockoutWindow    time.Duration

	CORSOrigins []string

	// Gateway upstreams and outbound timeout.
	AuthURL       string
	CalculatorURL string
	DashboardURL  string
	ProxyTimeout  time.Duration

	// Startup database connectivity wait-loop.
	ConnectAttempts int
	ConnectBackoff  time.Duration
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func getint(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return n, nil
}

// Load reads the environment and validates it. Callers that issue or verify
// tokens must pass requireSecret=true so a missing secret fails at startup.
func Load(requireSecret bool) (*Config, error) {
	c := &Config{
		Port:          getenv("AUTHGATE_PORT", "8080"),
		Secret:        getenv("AUTHGATE_SECRET", ""),
		Issuer:        getenv("AUTHGATE_ISSUER", "authgate"),
		PGDSN:         getenv("AUTHGATE_PG_DSN", ""),
		RedisURL:      getenv("AUTHGATE_REDIS_URL", ""),
		AuthURL:       getenv("AUTHGATE_AUTH_URL", "http://localhost:8081"),
		CalculatorURL: getenv("AUTHGATE_CALCULATOR_URL", "http://localhost:8082"),
		DashboardURL:  getenv("AUTHGATE_DASHBOARD_URL", "http://localhost:8083"),
	}

	if requireSecret && c.Secret == "" {
		return nil, errors.New("AUTHGATE_SECRET must be set")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid AUTHGATE_PORT: %s", c.Port)
	}

	var err error
	if c.TokenTTL, err = getduration("AUTHGATE_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.SessionTTL, err = getduration("AUTHGATE_SESSION_TTL", 8*time.Hour); err != nil {
		return nil, err
	}
	if c.LockoutWindow, err = getduration("AUTHGATE_LOCKOUT_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	if c.ProxyTimeout, err = getduration("AUTHGATE_PROXY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if c.ConnectBackoff, err = getduration("AUTHGATE_DB_CONNECT_BACKOFF", 3*time.Second); err != nil {
		return nil, err
	}
	if c.MaxLoginFailures, err = getint("AUTHGATE_MAX_LOGIN_FAILURES", 5); err != nil {
		return nil, err
	}
	if c.ConnectAttempts, err = getint("AUTHGATE_DB_CONNECT_ATTEMPTS", 10); err != nil {
		return nil, err
	}

	if raw := getenv("AUTHGATE_CORS_ORIGINS", ""); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				c.CORSOrigins = append(c.CORSOrigins, origin)
			}
		}
	}

	return c, nil
}
