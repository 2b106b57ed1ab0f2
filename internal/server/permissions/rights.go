package permissions

import "sync"

// Rights is the server-held rights summary of one authenticated session.
//
// The included-entity set is a positive-result memo, not a cache: once an
// entity is confirmed reachable from one of the actor's courses its id is
// appended and never removed for the session's lifetime. Absence only means
// "not yet checked or checked false" — callers must re-verify through the
// query service when absence matters.
type Rights struct {
	IsAdmin      bool
	SelfEntityID string

	mu       sync.Mutex
	included []string
	seen     map[string]struct{}
}

// NewRights builds a rights summary for one session.
func NewRights(isAdmin bool, selfEntityID string) *Rights {
	return &Rights{
		IsAdmin:      isAdmin,
		SelfEntityID: selfEntityID,
		seen:         map[string]struct{}{},
	}
}

// MarkIncluded records that entityID was confirmed to be in one of the
// actor's courses. Safe for concurrent use; duplicates are ignored.
func (r *Rights) MarkIncluded(entityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[entityID]; ok {
		return
	}
	r.seen[entityID] = struct{}{}
	r.included = append(r.included, entityID)
}

// AlreadyIncluded reports whether entityID was previously confirmed. A
// false result is not authoritative.
func (r *Rights) AlreadyIncluded(entityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[entityID]
	return ok
}

// IncludedEntityIDs returns the confirmed entity ids in insertion order.
func (r *Rights) IncludedEntityIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.included))
	copy(out, r.included)
	return out
}
