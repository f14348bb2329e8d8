package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"

	"authgate.org/internal/authz"
	"authgate.org/internal/gateway"
	"authgate.org/internal/httpapi"
	"authgate.org/internal/obs"
)

// AppName is the application this service registers as.
const AppName = "dashboard"

// PermUpload gates dataset uploads.
const PermUpload = "dashboard.upload"

// Server is the dashboard HTTP surface behind the gateway.
type Server struct {
	mux   *http.ServeMux
	store *Store
}

// NewServer wires the route table.
func NewServer(store *Store) (*Server, error) {
	if store == nil {
		return nil, errors.New("dashboard: store is required")
	}
	s := &Server{mux: http.NewServeMux(), store: store}
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", obs.Handler())
	s.mux.HandleFunc("/api/data", s.handleData)
	s.mux.HandleFunc("/api/upload", s.handleUpload)
	return s, nil
}

// Handler returns the mux wrapped in the shared middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = httpapi.MaxBodyBytes(h, 8<<20)
	h = httpapi.SecurityHeaders(h)
	h = obs.Instrument(h)
	h = httpapi.LoggingJSON(h)
	h = httpapi.RequestID(h)
	return h
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleData serves the latest dataset. No upload yet is not an error: the
// frontend renders the empty aggregates.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if _, ok := gateway.IdentityFromHeaders(r, AppName); !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	ds, err := s.store.Latest(r.Context())
	if err != nil {
		if errors.Is(err, ErrNoReport) {
			writeJSON(w, http.StatusOK, EmptyDataset())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id, ok := gateway.IdentityFromHeaders(r, AppName)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := authz.RequirePermission(id, AppName, PermUpload); err != nil {
		writeError(w, r, http.StatusForbidden, err.Error())
		return
	}

	var ds Dataset
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ds); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid dataset payload")
		return
	}

	if err := s.store.Save(r.Context(), ds, id.UserID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	obs.Logger().Info().Str("user_id", id.UserID).Int("proyectos", len(ds.Proyectos)).Msg("dataset_uploaded")
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "dataset stored"})
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
