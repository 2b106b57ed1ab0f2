// Package actions executes claim mutations against the remote editing
// service on behalf of authenticated users: single create/update/remove
// actions, the idempotent user-relation toggle, and the two-step claim move
// with compensating rollback.
package actions

import (
	"fmt"

	"github.com/wikicampus/wikicampus/internal/common"
	"github.com/wikicampus/wikicampus/internal/ident"
	"github.com/wikicampus/wikicampus/internal/server/repositories/audit"
)

// Action is the closed set of claim mutations. Every identifier is
// validated before any remote call is made.
type Action interface {
	// Kind names the mutation for logs, metrics, and audit records.
	Kind() string
	Validate() error

	isAction()
}

// Create writes a new claim on an entity.
type Create struct {
	EntityID   string
	Property   string
	Value      string
	Rank       string
	Qualifiers map[string]string
}

func (a Create) isAction()    {}
func (a Create) Kind() string { return audit.KindCreate }

func (a Create) Validate() error {
	if err := ident.ValidateEntityID(a.EntityID); err != nil {
		return err
	}
	if err := ident.ValidatePropertyID(a.Property); err != nil {
		return err
	}
	if a.Value == "" {
		return fmt.Errorf("%w: claim value is required", common.ErrorValidation)
	}
	switch a.Rank {
	case "", "preferred", "normal", "deprecated":
	default:
		return fmt.Errorf("%w: unknown rank %q", common.ErrorValidation, a.Rank)
	}
	for p := range a.Qualifiers {
		if err := ident.ValidatePropertyID(p); err != nil {
			return err
		}
	}
	return nil
}

// Update replaces the value of an existing claim, located by entity,
// property, and current value.
type Update struct {
	EntityID string
	Property string
	OldValue string
	NewValue string
}

func (a Update) isAction()    {}
func (a Update) Kind() string { return audit.KindUpdate }

func (a Update) Validate() error {
	if err := ident.ValidateEntityID(a.EntityID); err != nil {
		return err
	}
	if err := ident.ValidatePropertyID(a.Property); err != nil {
		return err
	}
	if a.OldValue == "" || a.NewValue == "" {
		return fmt.Errorf("%w: old and new claim values are required", common.ErrorValidation)
	}
	return nil
}

// Remove deletes a claim, either directly by GUID or located by the
// (entity, property, value) triple.
type Remove struct {
	GUID string

	EntityID string
	Property string
	Value    string
}

func (a Remove) isAction()    {}
func (a Remove) Kind() string { return audit.KindRemove }

func (a Remove) Validate() error {
	if a.GUID != "" {
		// The GUID prefix names the entity the statement lives on; it must
		// agree with the entity the caller was authorized for.
		guidEntity := ident.EntityIDFromGUID(a.GUID)
		if guidEntity == "" {
			return fmt.Errorf("%w: malformed statement GUID %q", common.ErrorValidation, a.GUID)
		}
		if a.EntityID != "" && a.EntityID != guidEntity {
			return fmt.Errorf("%w: statement GUID %s does not belong to %s", common.ErrorValidation, a.GUID, a.EntityID)
		}
		return nil
	}
	if err := ident.ValidateEntityID(a.EntityID); err != nil {
		return err
	}
	if err := ident.ValidatePropertyID(a.Property); err != nil {
		return err
	}
	if a.Value == "" {
		return fmt.Errorf("%w: claim value is required", common.ErrorValidation)
	}
	return nil
}
