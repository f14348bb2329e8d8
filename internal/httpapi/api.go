// Package httpapi is the HTTP surface of the auth service: login, logout,
// token verification, per-application validation and the admin user
// endpoints. Handlers translate between the wire format and the domain
// packages; all policy lives below this layer.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"authgate.org/internal/account"
	"authgate.org/internal/obs"
	"authgate.org/internal/session"
	"authgate.org/internal/token"
)

// Options configures an API.
type Options struct {
	Accounts *account.Service
	Sessions session.Store
	Issuer   *token.Issuer

	SessionTTL    time.Duration
	MaxFailures   int
	LockoutWindow time.Duration
	CORSOrigins   []string

	// Ready reports backend connectivity for the readiness probe.
	Ready func(context.Context) error
}

// API is the assembled auth service handler set.
type API struct {
	mux      *http.ServeMux
	accounts *account.Service
	sessions session.Store
	issuer   *token.Issuer

	sessionTTL    time.Duration
	maxFailures   int
	lockoutWindow time.Duration
	corsOrigins   []string
	ready         func(context.Context) error
}

// New wires the route table. Routing is a plain ServeMux plus in-handler
// path switches for nested resources.
func New(opts Options) (*API, error) {
	if opts.Accounts == nil || opts.Sessions == nil || opts.Issuer == nil {
		return nil, errors.New("httpapi: accounts, sessions and issuer are required")
	}
	a := &API{
		mux:           http.NewServeMux(),
		accounts:      opts.Accounts,
		sessions:      opts.Sessions,
		issuer:        opts.Issuer,
		sessionTTL:    opts.SessionTTL,
		maxFailures:   opts.MaxFailures,
		lockoutWindow: opts.LockoutWindow,
		corsOrigins:   opts.CORSOrigins,
		ready:         opts.Ready,
	}
	if a.sessionTTL <= 0 {
		a.sessionTTL = 8 * time.Hour
	}
	if a.maxFailures <= 0 {
		a.maxFailures = 5
	}
	if a.lockoutWindow <= 0 {
		a.lockoutWindow = 15 * time.Minute
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/auth/verify", a.handleVerify)
	a.mux.HandleFunc("/auth/validate/", a.requireAuth(a.handleValidate))

	a.mux.HandleFunc("/users", a.requirePermission(PermManageUsers, a.handleUsersCollection))
	a.mux.HandleFunc("/users/", a.requirePermission(PermManageUsers, a.handleUserResource))

	return a, nil
}

// Handler returns the mux wrapped in the shared middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = CORS(h, a.corsOrigins)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
