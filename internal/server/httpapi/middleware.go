package httpapi

import (
	"net/http"

	"github.com/wikicampus/wikicampus/internal/server/sessions"
)

// sessionHandler is an endpoint that runs inside an authenticated session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, s *sessions.Session)

// withSession resolves the bearer token to a live session before the
// endpoint runs. Requests without a valid session get 401.
func (a *API) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		s, err := a.sessions.Resolve(token)
		if err != nil {
			a.writeOperationError(w, r, err)
			return
		}
		next(w, r, s)
	}
}
