package actions

import (
	"context"
	"fmt"

	"github.com/wikicampus/wikicampus/internal/common"
	"github.com/wikicampus/wikicampus/internal/logging"
	"github.com/wikicampus/wikicampus/internal/obs"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
	"github.com/wikicampus/wikicampus/internal/server/repositories/audit"
	"github.com/wikicampus/wikicampus/internal/server/sessioncache"
	"github.com/wikicampus/wikicampus/internal/wikibase"
)

// Attribution carries who performed a mutation and through which
// authorization path, for the audit log.
type Attribution struct {
	ActorEntityID     string
	StudentSuggestion bool
	// EditGroupID ties the steps of one logical move together; empty for
	// standalone actions.
	EditGroupID string
}

// Executor performs claim mutations through cached per-credential session
// handles and records each attempt in the audit log.
type Executor struct {
	editing *sessioncache.Cache[wikibase.EditingService]
	query   *sessioncache.Cache[wikibase.QueryService]
	audit   audit.Repository
	log     logging.Logger
}

func NewExecutor(
	editing *sessioncache.Cache[wikibase.EditingService],
	query *sessioncache.Cache[wikibase.QueryService],
	auditRepo audit.Repository,
	log logging.Logger,
) *Executor {
	return &Executor{
		editing: editing,
		query:   query,
		audit:   auditRepo,
		log:     log.With("module", "actions"),
	}
}

// Execute validates the action, performs the matching remote mutation, and
// returns a confirmation string. Validation and authentication failures are
// detected locally, before any remote call. Remote failures come back as
// *MutationError without retry.
func (e *Executor) Execute(ctx context.Context, action Action, cred permissions.Credential, attr Attribution) (string, error) {
	if !cred.IsAuthenticated() {
		return "", common.ErrorAuthenticationRequired
	}
	if permissions.IsDemoAccount(cred) {
		return "", fmt.Errorf("%w: the demo account cannot edit", common.ErrorAuthorizationDenied)
	}
	if err := action.Validate(); err != nil {
		return "", err
	}

	confirmation, err := e.perform(ctx, action, cred)
	e.record(ctx, action, cred, attr, err)
	if err != nil {
		obs.Mutation(action.Kind(), audit.OutcomeError)
		e.log.Error(ctx, "mutation failed", "kind", action.Kind(), "actor", cred.Username, "err", err.Error())
		return "", err
	}
	obs.Mutation(action.Kind(), audit.OutcomeOK)
	return confirmation, nil
}

func (e *Executor) perform(ctx context.Context, action Action, cred permissions.Credential) (string, error) {
	handle, err := e.editing.Get(ctx, cred)
	if err != nil {
		return "", &MutationError{Message: err.Error()}
	}

	switch a := action.(type) {
	case Create:
		guid, err := handle.CreateClaim(ctx, wikibase.Claim{
			EntityID:   a.EntityID,
			Property:   a.Property,
			Value:      a.Value,
			Rank:       a.Rank,
			Qualifiers: a.Qualifiers,
		})
		if err != nil {
			return "", &MutationError{Message: err.Error()}
		}
		return fmt.Sprintf("created claim %s on %s (%s)", guid, a.EntityID, a.Property), nil

	case Update:
		guid, err := e.resolveGUID(ctx, cred, a.EntityID, a.Property, a.OldValue)
		if err != nil {
			return "", err
		}
		if guid == "" {
			return "", &MutationError{Message: fmt.Sprintf("no %s claim with value %q on %s", a.Property, a.OldValue, a.EntityID)}
		}
		if err := handle.UpdateClaimValue(ctx, guid, a.NewValue); err != nil {
			return "", &MutationError{Message: err.Error()}
		}
		return fmt.Sprintf("updated %s on %s", a.Property, a.EntityID), nil

	case Remove:
		guid := a.GUID
		if guid == "" {
			guid, err = e.resolveGUID(ctx, cred, a.EntityID, a.Property, a.Value)
			if err != nil {
				return "", err
			}
			if guid == "" {
				return "", &MutationError{Message: fmt.Sprintf("no %s claim with value %q on %s", a.Property, a.Value, a.EntityID)}
			}
		}
		if err := handle.RemoveClaim(ctx, guid); err != nil {
			return "", &MutationError{Message: err.Error()}
		}
		return fmt.Sprintf("removed claim %s", guid), nil

	default:
		return "", fmt.Errorf("%w: unsupported action %T", common.ErrorInternal, action)
	}
}

// resolveGUID locates the statement GUID of the (entity, property, value)
// triple through the query service. Returns "" when no claim matches.
func (e *Executor) resolveGUID(ctx context.Context, cred permissions.Credential, entityID, property, value string) (string, error) {
	q, err := e.query.Get(ctx, cred)
	if err != nil {
		return "", &QueryError{Message: err.Error()}
	}
	claims, err := q.EntityClaims(ctx, entityID, property)
	if err != nil {
		return "", &QueryError{Message: err.Error()}
	}
	for _, c := range claims {
		if c.Value == value {
			return c.GUID, nil
		}
	}
	return "", nil
}

func (e *Executor) record(ctx context.Context, action Action, cred permissions.Credential, attr Attribution, execErr error) {
	entityID, property, value := actionDetails(action)
	rec := &audit.Record{
		Actor:             cred.Username,
		ActorEntityID:     attr.ActorEntityID,
		Kind:              action.Kind(),
		EntityID:          entityID,
		Property:          property,
		Value:             value,
		StudentSuggestion: attr.StudentSuggestion,
		EditGroupID:       attr.EditGroupID,
		Outcome:           audit.OutcomeOK,
	}
	if execErr != nil {
		rec.Outcome = audit.OutcomeError
		rec.ErrMessage = execErr.Error()
	}
	if err := e.audit.Append(ctx, rec); err != nil {
		// The mutation already happened; losing the audit record must not
		// fail the request.
		e.log.Error(ctx, "audit append failed", "err", err.Error())
	}
}

func actionDetails(action Action) (entityID, property, value string) {
	switch a := action.(type) {
	case Create:
		return a.EntityID, a.Property, a.Value
	case Update:
		return a.EntityID, a.Property, a.NewValue
	case Remove:
		if a.EntityID != "" {
			return a.EntityID, a.Property, a.Value
		}
		return "", "", a.GUID
	}
	return "", "", ""
}
