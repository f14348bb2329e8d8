package httpapi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"authgate.org/internal/account"
)

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := account.ListFilter{
		Search:  strings.TrimSpace(q.Get("search")),
		SortBy:  q.Get("sort_by"),
		SortDir: q.Get("sort_dir"),
	}
	if v := q.Get("page"); v != "" {
		filter.Page, _ = strconv.Atoi(v)
	}
	if v := q.Get("per_page"); v != "" {
		filter.PerPage, _ = strconv.Atoi(v)
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "active must be true or false")
			return
		}
		filter.Active = &active
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PerPage < 1 || filter.PerPage > 100 {
		filter.PerPage = 20
	}

	users, total, err := a.accounts.ListUsers(r.Context(), filter)
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	if users == nil {
		users = []account.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"items":    users,
		"total":    total,
		"page":     filter.Page,
		"per_page": filter.PerPage,
	})
}

type createUserRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.accounts.CreateUser(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "user": user})
}

// handleUserResource routes /users/{id}[/...] plus the two fixed subtrees
// /users/export/csv and /users/stats/overview, which must be matched before
// the {id} pattern.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "export/csv":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.exportUsersCSV(w, r)
	case rest == "stats/overview":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.userStats(w, r)
	case len(parts) == 1 && parts[0] != "":
		a.userByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "password":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updatePassword(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.updateStatus(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) userByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		user, err := a.accounts.User(r.Context(), id)
		if err != nil {
			a.writeAccountError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
	case http.MethodPut:
		var upd account.UserUpdate
		if err := decodeJSON(w, r, &upd); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.accounts.UpdateUser(r.Context(), id, upd)
		if err != nil {
			a.writeAccountError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
	case http.MethodDelete:
		// Soft delete: the account is deactivated, never removed.
		if err := a.accounts.DeactivateUser(r.Context(), id); err != nil {
			a.writeAccountError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "user deactivated"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

func (a *API) updatePassword(w http.ResponseWriter, r *http.Request, id string) {
	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.accounts.UpdatePassword(r.Context(), id, req.Password); err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "password updated"})
}

type updateStatusRequest struct {
	Active *bool `json:"active"`
}

func (a *API) updateStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, r, http.StatusBadRequest, "active is required")
		return
	}
	user, err := a.accounts.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": user})
}

func (a *API) exportUsersCSV(w http.ResponseWriter, r *http.Request) {
	users, err := a.accounts.ExportUsers(r.Context())
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}

	filename := fmt.Sprintf("users_export_%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"id", "email", "first_name", "last_name", "active", "created_at", "last_login"})
	for _, u := range users {
		lastLogin := ""
		if u.LastLogin != nil {
			lastLogin = u.LastLogin.UTC().Format(time.RFC3339)
		}
		_ = cw.Write([]string{
			u.ID,
			u.Email,
			u.FirstName,
			u.LastName,
			strconv.FormatBool(u.Active),
			u.CreatedAt.UTC().Format(time.RFC3339),
			lastLogin,
		})
	}
	cw.Flush()
}

func (a *API) userStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.accounts.Stats(r.Context())
	if err != nil {
		a.writeAccountError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (a *API) writeAccountError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, account.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, account.ErrConflict):
		writeError(w, r, http.StatusConflict, "email already in use")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
