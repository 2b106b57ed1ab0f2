// Package httpapi is the thin JSON layer over the core operations: login
// and logout, claim mutations, the relation toggle, the claim move, and
// the student-suggestion review listing.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wikicampus/wikicampus/internal/common"
	"github.com/wikicampus/wikicampus/internal/logging"
	"github.com/wikicampus/wikicampus/internal/obs"
	"github.com/wikicampus/wikicampus/internal/server/actions"
	"github.com/wikicampus/wikicampus/internal/server/repositories/audit"
	"github.com/wikicampus/wikicampus/internal/server/sessions"
)

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	sessions *sessions.Manager
	exec     *actions.Executor
	audit    audit.Repository
	log      logging.Logger
}

func New(sm *sessions.Manager, exec *actions.Executor, auditRepo audit.Repository, log logging.Logger) *API {
	a := &API{
		mux:      http.NewServeMux(),
		sessions: sm,
		exec:     exec,
		audit:    auditRepo,
		log:      log.With("module", "httpapi"),
	}

	a.mux.HandleFunc("/healthz", a.Healthz)

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	a.mux.HandleFunc("/v1/claims/execute", a.withSession(a.handleExecute))
	a.mux.HandleFunc("/v1/claims/move", a.withSession(a.handleMove))
	a.mux.HandleFunc("/v1/relations/toggle", a.withSession(a.handleToggle))
	a.mux.HandleFunc("/v1/suggestions", a.withSession(a.handleSuggestions))

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full handler chain, with request metrics on the
// outside.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.mux)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "wikicampus",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeOperationError maps the error kinds of the core operations to HTTP
// statuses. A rollback failure is the loudest case: the response carries
// the entity needing manual cleanup.
func (a *API) writeOperationError(w http.ResponseWriter, r *http.Request, err error) {
	var rb *actions.RollbackError
	if errors.As(err, &rb) {
		a.log.Error(r.Context(), "rollback failure surfaced to client", "entity", rb.EntityID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":                  err.Error(),
			"needs_manual_cleanup":   true,
			"duplicate_claim_entity": rb.EntityID,
		})
		return
	}

	switch {
	case errors.Is(err, common.ErrorAuthenticationRequired),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, common.ErrorAuthorizationDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, common.ErrorValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		var me *actions.MutationError
		var qe *actions.QueryError
		if errors.As(err, &me) || errors.As(err, &qe) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(common.SessionTokenHeaderName)
	if h == "" {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}
