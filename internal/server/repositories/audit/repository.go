// Package audit records every claim mutation performed through the server,
// most importantly student-suggestion edits made via the included-item path.
package audit

import (
	"context"
	"time"
)

// Mutation kinds recorded in the log.
const (
	KindCreate   = "create"
	KindUpdate   = "update"
	KindRemove   = "remove"
	KindMove     = "move"
	KindRollback = "rollback"
)

// Outcomes of a recorded mutation.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Record is one audit log entry.
type Record struct {
	ID                string    `json:"id"`
	Actor             string    `json:"actor"`
	ActorEntityID     string    `json:"actor_entity_id"`
	Kind              string    `json:"kind"`
	EntityID          string    `json:"entity_id"`
	Property          string    `json:"property"`
	Value             string    `json:"value"`
	StudentSuggestion bool      `json:"student_suggestion"`
	// EditGroupID ties together the steps of one logical move.
	EditGroupID string    `json:"edit_group_id"`
	Outcome     string    `json:"outcome"`
	ErrMessage  string    `json:"err_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository is the audit log storage contract.
type Repository interface {
	Append(ctx context.Context, rec *Record) error
	ListByActor(ctx context.Context, actor string, limit int) ([]Record, error)
	ListStudentSuggestions(ctx context.Context, limit int) ([]Record, error)
}
