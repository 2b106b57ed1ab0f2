package actions

import (
	"context"
	"fmt"

	"github.com/wikicampus/wikicampus/internal/common"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
)

// Course membership is modelled in the graph itself: a course entity links
// to its participants and to the entities it covers.
const (
	participantProperty   = "P710"
	courseContentProperty = "P921"
)

// AuthorizeEdit is the entry rule every mutation endpoint applies before
// dispatching to the executor. Absence from the included-entity memo is not
// authoritative, so a miss triggers one remote membership check before the
// request is denied.
func (e *Executor) AuthorizeEdit(ctx context.Context, cred permissions.Credential, rights *permissions.Rights, targetEntityID string) (permissions.EditFlags, error) {
	if !cred.IsAuthenticated() {
		return permissions.EditFlags{}, common.ErrorAuthenticationRequired
	}
	if permissions.IsDemoAccount(cred) {
		return permissions.EditFlags{}, fmt.Errorf("%w: the demo account cannot edit", common.ErrorAuthorizationDenied)
	}

	included := rights.AlreadyIncluded(targetEntityID)
	flags := permissions.EvaluateEdit(rights.IsAdmin, rights.SelfEntityID, targetEntityID, included)
	if flags.CanEditItem {
		return flags, nil
	}

	included, err := e.EnsureIncluded(ctx, cred, rights, targetEntityID)
	if err != nil {
		return permissions.EditFlags{}, err
	}
	flags = permissions.EvaluateEdit(rights.IsAdmin, rights.SelfEntityID, targetEntityID, included)
	if !flags.CanEditItem {
		return permissions.EditFlags{}, fmt.Errorf("%w: no editing rights on %s", common.ErrorAuthorizationDenied, targetEntityID)
	}
	return flags, nil
}

// EnsureIncluded reports whether entityID is reachable from a course the
// actor participates in, consulting the memo first and the query service on
// a miss. A confirmed membership is memoized for the rest of the session.
func (e *Executor) EnsureIncluded(ctx context.Context, cred permissions.Credential, rights *permissions.Rights, entityID string) (bool, error) {
	if rights.AlreadyIncluded(entityID) {
		return true, nil
	}
	if rights.SelfEntityID == "" {
		return false, nil
	}

	q, err := e.query.Get(ctx, cred)
	if err != nil {
		return false, &QueryError{Message: err.Error()}
	}
	query := fmt.Sprintf(
		`SELECT ?course WHERE { ?course wdt:%s wd:%s . ?course wdt:%s wd:%s . } LIMIT 1`,
		participantProperty, rights.SelfEntityID, courseContentProperty, entityID)
	rows, err := q.Select(ctx, query)
	if err != nil {
		return false, &QueryError{Message: err.Error()}
	}
	if len(rows) == 0 {
		return false, nil
	}
	rights.MarkIncluded(entityID)
	return true, nil
}
