package calc

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sort"

	"authgate.org/internal/authz"
	"authgate.org/internal/gateway"
	"authgate.org/internal/httpapi"
	"authgate.org/internal/obs"
)

// AppName is the application this service registers as.
const AppName = "calculator"

// Server is the calculator HTTP surface. It sits behind the gateway and
// derives the caller's identity from the injected headers.
type Server struct {
	mux *http.ServeMux
}

// NewServer wires the route table. Each tier has its own endpoint so the
// permission boundary is visible in the URL space.
func NewServer() *Server {
	s := &Server{mux: http.NewServeMux()}
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", obs.Handler())
	s.mux.HandleFunc("/api/calculate/basic", s.handleCalculate(PermBasic))
	s.mux.HandleFunc("/api/calculate/advanced", s.handleCalculate(PermAdvanced))
	s.mux.HandleFunc("/api/operations", s.handleOperations)
	return s
}

// Handler returns the mux wrapped in the shared middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = httpapi.MaxBodyBytes(h, 1<<16)
	h = httpapi.SecurityHeaders(h)
	h = obs.Instrument(h)
	h = httpapi.LoggingJSON(h)
	h = httpapi.RequestID(h)
	return h
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type calculateRequest struct {
	Operation string  `json:"operation"`
	A         float64 `json:"a"`
	B         float64 `json:"b"`
}

func (s *Server) handleCalculate(tier string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		id, ok := gateway.IdentityFromHeaders(r, AppName)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}

		var req calculateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}

		perm, err := PermissionFor(req.Operation)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "unknown operation")
			return
		}
		if perm != tier {
			writeError(w, r, http.StatusBadRequest, "operation not available on this endpoint")
			return
		}
		if err := authz.RequirePermission(id, AppName, perm); err != nil {
			writeError(w, r, http.StatusForbidden, err.Error())
			return
		}

		result, err := Apply(req.Operation, req.A, req.B)
		if err != nil {
			switch {
			case errors.Is(err, ErrDivideByZero):
				writeError(w, r, http.StatusBadRequest, "cannot divide by zero")
			case errors.Is(err, ErrNegativeRoot), errors.Is(err, ErrZeroRootDegree):
				writeError(w, r, http.StatusBadRequest, err.Error())
			default:
				writeError(w, r, http.StatusInternalServerError, "internal error")
			}
			return
		}
		// power/root can overflow or leave the reals; NaN and Inf have no
		// JSON encoding.
		if math.IsNaN(result) || math.IsInf(result, 0) {
			writeError(w, r, http.StatusBadRequest, "result is not a finite number")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success":   true,
			"operation": req.Operation,
			"result":    result,
		})
	}
}

// handleOperations lists the operations the caller may use, derived from
// the identity headers.
func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := gateway.IdentityFromHeaders(r, AppName)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	allowed := []string{}
	for op, perm := range Operations() {
		if authz.RequirePermission(id, AppName, perm) == nil {
			allowed = append(allowed, op)
		}
	}
	sort.Strings(allowed)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"operations": allowed,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"success": false,
		"error":   msg,
	}
	if rid := httpapi.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
