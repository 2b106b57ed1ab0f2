package actions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wikicampus/wikicampus/internal/common"
	"github.com/wikicampus/wikicampus/internal/ident"
	"github.com/wikicampus/wikicampus/internal/obs"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
	"github.com/wikicampus/wikicampus/internal/server/repositories/audit"
	"github.com/wikicampus/wikicampus/internal/wikibase"
)

// MoveRequest asks to move the (Property, Value) claim from the source
// entity to the destination entity, writing NewClaim on the destination.
type MoveRequest struct {
	FromEntityID string
	ToEntityID   string
	Property     string
	Value        string
	NewClaim     Create
}

func (r MoveRequest) validate() error {
	if err := ident.ValidateEntityID(r.FromEntityID); err != nil {
		return err
	}
	if err := ident.ValidateEntityID(r.ToEntityID); err != nil {
		return err
	}
	if err := ident.ValidatePropertyID(r.Property); err != nil {
		return err
	}
	if r.Value == "" {
		return fmt.Errorf("%w: claim value is required", common.ErrorValidation)
	}
	// The destination is what gets authorized; the new claim may not point
	// anywhere else.
	if r.NewClaim.EntityID != r.ToEntityID {
		return fmt.Errorf("%w: new claim entity %s does not match destination %s",
			common.ErrorValidation, r.NewClaim.EntityID, r.ToEntityID)
	}
	return r.NewClaim.Validate()
}

// MoveClaim performs a claim move as two dependent remote writes with a
// compensating rollback.
//
// The destination create runs first; if it fails nothing has changed and
// the move aborts. The source removal runs second; if it fails, the
// just-created destination claim is removed again. A successful rollback
// surfaces the removal failure as an ordinary *MutationError (state
// restored); a failed rollback surfaces a *RollbackError, meaning a
// duplicate claim is left behind and needs manual cleanup.
//
// When the actor has no confirmed rights over the source entity the
// operation degrades to a copy: only the create step runs. When editing was
// authorized through the included-item path, the new claim is annotated
// with the provenance qualifier carrying the actor's entity id.
func (e *Executor) MoveClaim(ctx context.Context, req MoveRequest, cred permissions.Credential, rights *permissions.Rights) (string, error) {
	if !cred.IsAuthenticated() {
		return "", common.ErrorAuthenticationRequired
	}
	if permissions.IsDemoAccount(cred) {
		return "", fmt.Errorf("%w: the demo account cannot edit", common.ErrorAuthorizationDenied)
	}
	if err := req.validate(); err != nil {
		return "", err
	}

	flags := permissions.EvaluateEdit(rights.IsAdmin, rights.SelfEntityID,
		req.ToEntityID, rights.AlreadyIncluded(req.ToEntityID))
	if !flags.CanEditItem {
		return "", fmt.Errorf("%w: no editing rights on %s", common.ErrorAuthorizationDenied, req.ToEntityID)
	}

	newClaim := req.NewClaim
	if flags.StudentSuggestion {
		newClaim.Qualifiers = withProvenance(newClaim.Qualifiers, rights.SelfEntityID)
	}

	// Without confirmed rights over the source the original claim stays:
	// copy instead of move.
	removeFromSource := req.FromEntityID == rights.SelfEntityID || rights.AlreadyIncluded(req.FromEntityID) || rights.IsAdmin

	attr := Attribution{
		ActorEntityID:     rights.SelfEntityID,
		StudentSuggestion: flags.StudentSuggestion,
		EditGroupID:       uuid.NewString(),
	}

	handle, err := e.editing.Get(ctx, cred)
	if err != nil {
		return "", &MutationError{Message: err.Error()}
	}

	createdGUID, err := handle.CreateClaim(ctx, wikibase.Claim{
		EntityID:   newClaim.EntityID,
		Property:   newClaim.Property,
		Value:      newClaim.Value,
		Rank:       newClaim.Rank,
		Qualifiers: newClaim.Qualifiers,
	})
	e.record(ctx, newClaim, cred, attr, err)
	if err != nil {
		obs.Mutation(audit.KindMove, audit.OutcomeError)
		return "", fmt.Errorf("create on %s failed: %w", req.ToEntityID, &MutationError{Message: err.Error()})
	}

	if !removeFromSource {
		obs.Mutation(audit.KindMove, audit.OutcomeOK)
		return fmt.Sprintf("copied %s to %s", req.Property, req.ToEntityID), nil
	}

	if err := e.removeSourceClaim(ctx, cred, req, attr); err != nil {
		rbErr := handle.RemoveClaim(ctx, createdGUID)
		e.record(ctx, Remove{GUID: createdGUID, EntityID: req.ToEntityID, Property: newClaim.Property, Value: newClaim.Value},
			cred, Attribution{ActorEntityID: attr.ActorEntityID, EditGroupID: attr.EditGroupID}, rbErr)
		if rbErr != nil {
			obs.RollbackFailure()
			obs.Mutation(audit.KindRollback, audit.OutcomeError)
			e.log.Error(ctx, "move rollback failed, duplicate claim left behind",
				"entity", req.ToEntityID, "guid", createdGUID, "err", rbErr.Error())
			return "", &RollbackError{EntityID: req.ToEntityID, Cause: err, RollbackCause: rbErr}
		}
		obs.Mutation(audit.KindMove, audit.OutcomeError)
		return "", fmt.Errorf("remove from %s failed: %w", req.FromEntityID, err)
	}

	obs.Mutation(audit.KindMove, audit.OutcomeOK)
	return fmt.Sprintf("moved %s to %s", req.Property, req.ToEntityID), nil
}

// removeSourceClaim deletes the original (Property, Value) claim from the
// source entity. A source claim that no longer exists counts as removed.
func (e *Executor) removeSourceClaim(ctx context.Context, cred permissions.Credential, req MoveRequest, attr Attribution) error {
	guid, err := e.resolveGUID(ctx, cred, req.FromEntityID, req.Property, req.Value)
	if err != nil {
		return err
	}
	if guid == "" {
		return nil
	}

	handle, err := e.editing.Get(ctx, cred)
	if err != nil {
		return &MutationError{Message: err.Error()}
	}
	removeErr := handle.RemoveClaim(ctx, guid)
	if removeErr != nil {
		removeErr = &MutationError{Message: removeErr.Error()}
	}
	e.record(ctx, Remove{GUID: guid, EntityID: req.FromEntityID, Property: req.Property, Value: req.Value},
		cred, attr, removeErr)
	return removeErr
}

// withProvenance merges the provenance qualifier into quals. Existing
// qualifiers are kept, but the provenance key always carries the actor's id.
func withProvenance(quals map[string]string, actorEntityID string) map[string]string {
	merged := make(map[string]string, len(quals)+1)
	for k, v := range quals {
		merged[k] = v
	}
	merged[common.SuggestedByProperty] = actorEntityID
	return merged
}
