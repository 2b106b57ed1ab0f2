package httpapi

import (
	"net/http"
	"strconv"

	"github.com/wikicampus/wikicampus/internal/ident"
	"github.com/wikicampus/wikicampus/internal/server/actions"
	"github.com/wikicampus/wikicampus/internal/server/sessions"
)

type executeRequest struct {
	Kind       string            `json:"kind"`
	EntityID   string            `json:"entity_id"`
	Property   string            `json:"property"`
	Value      string            `json:"value"`
	Rank       string            `json:"rank,omitempty"`
	Qualifiers map[string]string `json:"qualifiers,omitempty"`
	OldValue   string            `json:"old_value,omitempty"`
	NewValue   string            `json:"new_value,omitempty"`
	GUID       string            `json:"guid,omitempty"`
}

func (req executeRequest) action() (actions.Action, bool) {
	switch req.Kind {
	case "create":
		return actions.Create{
			EntityID:   req.EntityID,
			Property:   req.Property,
			Value:      req.Value,
			Rank:       req.Rank,
			Qualifiers: req.Qualifiers,
		}, true
	case "update":
		return actions.Update{
			EntityID: req.EntityID,
			Property: req.Property,
			OldValue: req.OldValue,
			NewValue: req.NewValue,
		}, true
	case "remove":
		return actions.Remove{
			GUID:     req.GUID,
			EntityID: req.EntityID,
			Property: req.Property,
			Value:    req.Value,
		}, true
	}
	return nil, false
}

func (a *API) handleExecute(w http.ResponseWriter, r *http.Request, s *sessions.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	action, ok := req.action()
	if !ok {
		writeError(w, http.StatusBadRequest, "kind must be create, update, or remove")
		return
	}

	// The entry rule runs against the entity the mutation actually touches.
	// For a remove by GUID that is the entity named by the GUID prefix, not
	// whatever entity_id the caller claimed.
	target := req.EntityID
	if req.Kind == "remove" && req.GUID != "" {
		guidEntity := ident.EntityIDFromGUID(req.GUID)
		if guidEntity == "" {
			writeError(w, http.StatusBadRequest, "guid must carry a well-formed entity prefix")
			return
		}
		if req.EntityID != "" && req.EntityID != guidEntity {
			writeError(w, http.StatusBadRequest, "entity_id does not match the statement GUID")
			return
		}
		target = guidEntity
	}
	if target == "" {
		writeError(w, http.StatusBadRequest, "entity_id is required")
		return
	}

	flags, err := a.exec.AuthorizeEdit(r.Context(), s.Credential, s.Rights, target)
	if err != nil {
		a.writeOperationError(w, r, err)
		return
	}

	confirmation, err := a.exec.Execute(r.Context(), action, s.Credential, actions.Attribution{
		ActorEntityID:     s.Rights.SelfEntityID,
		StudentSuggestion: flags.StudentSuggestion,
	})
	if err != nil {
		a.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":             confirmation,
		"student_suggestion": flags.StudentSuggestion,
	})
}

type moveRequest struct {
	FromEntityID string            `json:"from_entity_id"`
	ToEntityID   string            `json:"to_entity_id"`
	Property     string            `json:"property"`
	Value        string            `json:"value"`
	NewProperty  string            `json:"new_property,omitempty"`
	NewValue     string            `json:"new_value,omitempty"`
	Rank         string            `json:"rank,omitempty"`
	Qualifiers   map[string]string `json:"qualifiers,omitempty"`
}

func (a *API) handleMove(w http.ResponseWriter, r *http.Request, s *sessions.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The moved claim keeps its property and value unless the request
	// rewrites them for the destination.
	newProperty := req.NewProperty
	if newProperty == "" {
		newProperty = req.Property
	}
	newValue := req.NewValue
	if newValue == "" {
		newValue = req.Value
	}

	// Entry rule on the destination; a memo miss triggers one remote
	// membership check. The source side only decides copy-vs-move, so its
	// memo is refreshed too; a failing probe fails the request rather than
	// silently degrading the move to a copy.
	if _, err := a.exec.AuthorizeEdit(r.Context(), s.Credential, s.Rights, req.ToEntityID); err != nil {
		a.writeOperationError(w, r, err)
		return
	}
	if req.FromEntityID != s.Rights.SelfEntityID && !s.Rights.IsAdmin {
		if _, err := a.exec.EnsureIncluded(r.Context(), s.Credential, s.Rights, req.FromEntityID); err != nil {
			a.writeOperationError(w, r, err)
			return
		}
	}

	confirmation, err := a.exec.MoveClaim(r.Context(), actions.MoveRequest{
		FromEntityID: req.FromEntityID,
		ToEntityID:   req.ToEntityID,
		Property:     req.Property,
		Value:        req.Value,
		NewClaim: actions.Create{
			EntityID:   req.ToEntityID,
			Property:   newProperty,
			Value:      newValue,
			Rank:       req.Rank,
			Qualifiers: req.Qualifiers,
		},
	}, s.Credential, s.Rights)
	if err != nil {
		a.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": confirmation})
}

type toggleRequest struct {
	Property    string   `json:"property"`
	ShouldBeSet bool     `json:"should_be_set"`
	Targets     []string `json:"targets"`
}

func (a *API) handleToggle(w http.ResponseWriter, r *http.Request, s *sessions.Session) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, http.StatusBadRequest, "targets are required")
		return
	}

	issued, err := a.exec.ToggleUserRelation(r.Context(), req.Property, req.ShouldBeSet,
		s.Rights.SelfEntityID, req.Targets, s.Credential)
	if err != nil {
		a.writeOperationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mutations": issued})
}

func (a *API) handleSuggestions(w http.ResponseWriter, r *http.Request, s *sessions.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, err := a.audit.ListStudentSuggestions(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": recs})
}
