// Package gateway is the single public entry point. It authenticates
// requests locally (shared signing secret plus the shared session store),
// authorizes them against the route's application, then proxies to the
// backing service with the caller's identity injected as headers. Backends
// trust those headers because only the gateway can reach them.
package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"time"

	"authgate.org/internal/authz"
	"authgate.org/internal/httpapi"
	"authgate.org/internal/obs"
	"authgate.org/internal/session"
	"authgate.org/internal/token"
)

// Route declares one proxied prefix. Public routes skip authentication
// entirely; authenticated routes additionally require access to App, and
// PathPermissions can demand a specific permission for individual suffixes.
type Route struct {
	Name   string
	Prefix string
	Target string
	App    string
	Public bool

	// StripPrefix removes Prefix from the path before proxying, for
	// backends that serve from their own root.
	StripPrefix bool

	// PathPermissions maps a path suffix under Prefix to the permission
	// required for it, e.g. "/api/upload" -> "dashboard.upload".
	PathPermissions map[string]string
}

type compiledRoute struct {
	Route
	proxy *httputil.ReverseProxy
}

// Options configures a Gateway.
type Options struct {
	Issuer     *token.Issuer
	Sessions   session.Store
	SessionTTL time.Duration
	Routes     []Route

	// ProxyTimeout bounds the wait for an upstream response.
	ProxyTimeout time.Duration
	CORSOrigins  []string
}

// Gateway proxies and protects the configured routes.
type Gateway struct {
	issuer     *token.Issuer
	sessions   session.Store
	sessionTTL time.Duration
	routes     []compiledRoute
	cors       []string
}

// New compiles the route table. Routes are matched longest prefix first so
// overlapping prefixes behave predictably.
func New(opts Options) (*Gateway, error) {
	if opts.Issuer == nil || opts.Sessions == nil {
		return nil, errors.New("gateway: issuer and sessions are required")
	}
	if len(opts.Routes) == 0 {
		return nil, errors.New("gateway: at least one route is required")
	}
	timeout := opts.ProxyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sessionTTL := opts.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 8 * time.Hour
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}

	g := &Gateway{
		issuer:     opts.Issuer,
		sessions:   opts.Sessions,
		sessionTTL: sessionTTL,
		cors:       opts.CORSOrigins,
	}
	for _, r := range opts.Routes {
		r.Prefix = "/" + strings.Trim(r.Prefix, "/")
		target, err := url.Parse(r.Target)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, errors.New("gateway: invalid target for route " + r.Prefix)
		}
		name := r.Name
		if name == "" {
			name = strings.Trim(r.Prefix, "/")
		}
		r.Name = name

		prefix, strip := r.Prefix, r.StripPrefix
		proxy := &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
				if strip {
					pr.Out.URL.Path = strings.TrimPrefix(pr.Out.URL.Path, prefix)
					if pr.Out.URL.Path == "" {
						pr.Out.URL.Path = "/"
					}
					pr.Out.URL.RawPath = ""
				}
			},
			Transport:    transport,
			ErrorHandler: g.upstreamError(name),
		}
		g.routes = append(g.routes, compiledRoute{Route: r, proxy: proxy})
	}
	sort.Slice(g.routes, func(i, j int) bool {
		return len(g.routes[i].Prefix) > len(g.routes[j].Prefix)
	})
	return g, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/healthz":
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	case "/metrics":
		obs.Handler().ServeHTTP(w, r)
		return
	}

	route := g.match(r.URL.Path)
	if route == nil {
		writeError(w, r, http.StatusNotFound, "no route for path")
		return
	}

	if !route.Public {
		id, ok := g.authorize(w, r, route)
		if !ok {
			return
		}
		injectIdentity(r, id, route.App)
	} else {
		stripIdentityHeaders(r)
	}

	route.proxy.ServeHTTP(w, r)
}

// Handler wraps the gateway in the shared middleware chain.
func (g *Gateway) Handler() http.Handler {
	var h http.Handler = g
	h = httpapi.CORS(h, g.cors)
	h = httpapi.SecurityHeaders(h)
	h = obs.Instrument(h)
	h = httpapi.LoggingJSON(h)
	h = httpapi.RequestID(h)
	return h
}

func (g *Gateway) match(path string) *compiledRoute {
	for i := range g.routes {
		rt := &g.routes[i]
		if path == rt.Prefix || strings.HasPrefix(path, rt.Prefix+"/") {
			return rt
		}
	}
	return nil
}

// authorize runs the full chain for a protected route: token extraction and
// verification, revocation list, session existence with TTL slide, app
// access and per-path permission. It writes the error response itself and
// reports success via ok.
func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request, route *compiledRoute) (authz.Identity, bool) {
	raw := extractToken(r)
	if raw == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return authz.Identity{}, false
	}

	ctx := r.Context()
	id, claims, err := g.issuer.Verify(raw)
	if err != nil {
		g.writeTokenError(w, r, err)
		return authz.Identity{}, false
	}
	revoked, err := g.sessions.IsRevoked(ctx, claims.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return authz.Identity{}, false
	}
	if revoked {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return authz.Identity{}, false
	}
	if _, err := g.sessions.Get(ctx, claims.ID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "session expired")
			return authz.Identity{}, false
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return authz.Identity{}, false
	}
	if err := g.sessions.Extend(ctx, claims.ID, g.sessionTTL); err != nil && !errors.Is(err, session.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return authz.Identity{}, false
	}

	if _, err := id.Access(route.App); err != nil && !id.IsSuperAdmin() {
		writeError(w, r, http.StatusForbidden, "no access to application")
		return authz.Identity{}, false
	}
	if perm := route.permissionFor(r.URL.Path); perm != "" {
		if err := authz.RequirePermission(id, route.App, perm); err != nil {
			writeError(w, r, http.StatusForbidden, err.Error())
			return authz.Identity{}, false
		}
	}
	return id, true
}

func (rt *compiledRoute) permissionFor(path string) string {
	if len(rt.PathPermissions) == 0 {
		return ""
	}
	suffix := strings.TrimPrefix(path, rt.Prefix)
	for sub, perm := range rt.PathPermissions {
		if suffix == sub || strings.HasPrefix(suffix, sub+"/") {
			return perm
		}
	}
	return ""
}

func (g *Gateway) writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="authgate"`)
	if errors.Is(err, token.ErrExpiredToken) {
		writeError(w, r, http.StatusUnauthorized, "token expired")
		return
	}
	writeError(w, r, http.StatusUnauthorized, "invalid token")
}

// upstreamError maps proxy failures: timeouts become 504, everything else
// (connection refused, DNS failure) becomes 503 naming the service.
func (g *Gateway) upstreamError(service string) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		obs.Logger().Error().Err(err).Str("service", service).Msg("upstream_error")
		code := http.StatusServiceUnavailable
		msg := service + " service unavailable"
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			code = http.StatusGatewayTimeout
			msg = service + " service timed out"
		}
		writeError(w, r, code, msg)
	}
}
