package actions

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/wikicampus/wikicampus/internal/common"
	"github.com/wikicampus/wikicampus/internal/ident"
	"github.com/wikicampus/wikicampus/internal/server/permissions"
	"github.com/wikicampus/wikicampus/internal/wikibase"
)

// ToggleUserRelation brings the actor's relation claims in line with
// shouldBeSet for every target entity: already-correct targets are left
// alone, missing relations are created, unwanted ones removed by GUID.
// The needed mutations run concurrently; a failure in any one of them fails
// the whole batch. Returns the number of mutations actually issued.
func (e *Executor) ToggleUserRelation(ctx context.Context, property string, shouldBeSet bool, actorEntityID string, targetIDs []string, cred permissions.Credential) (int, error) {
	if !cred.IsAuthenticated() {
		return 0, common.ErrorAuthenticationRequired
	}
	if permissions.IsDemoAccount(cred) {
		return 0, fmt.Errorf("%w: the demo account cannot edit", common.ErrorAuthorizationDenied)
	}
	if err := ident.ValidatePropertyID(property); err != nil {
		return 0, err
	}
	if err := ident.ValidateEntityID(actorEntityID); err != nil {
		return 0, err
	}
	for _, id := range targetIDs {
		if err := ident.ValidateEntityID(id); err != nil {
			return 0, err
		}
	}

	q, err := e.query.Get(ctx, cred)
	if err != nil {
		return 0, &QueryError{Message: err.Error()}
	}
	existing, err := q.EntityClaims(ctx, actorEntityID, property)
	if err != nil {
		return 0, &QueryError{Message: err.Error()}
	}
	guidByTarget := make(map[string]string, len(existing))
	for _, c := range existing {
		guidByTarget[c.Value] = c.GUID
	}

	handle, err := e.editing.Get(ctx, cred)
	if err != nil {
		return 0, &MutationError{Message: err.Error()}
	}

	var issued atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, targetID := range targetIDs {
		guid, exists := guidByTarget[targetID]
		switch {
		case exists == shouldBeSet:
			// Already in the requested state.
			continue
		case shouldBeSet:
			targetID := targetID
			g.Go(func() error {
				_, err := handle.CreateClaim(gctx, wikibase.Claim{
					EntityID: actorEntityID,
					Property: property,
					Value:    targetID,
				})
				if err != nil {
					return &MutationError{Message: err.Error()}
				}
				e.record(gctx, Create{EntityID: actorEntityID, Property: property, Value: targetID},
					cred, Attribution{ActorEntityID: actorEntityID}, nil)
				issued.Add(1)
				return nil
			})
		default:
			guid := guid
			targetID := targetID
			g.Go(func() error {
				if err := handle.RemoveClaim(gctx, guid); err != nil {
					return &MutationError{Message: err.Error()}
				}
				e.record(gctx, Remove{GUID: guid, EntityID: actorEntityID, Property: property, Value: targetID},
					cred, Attribution{ActorEntityID: actorEntityID}, nil)
				issued.Add(1)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return int(issued.Load()), nil
}
