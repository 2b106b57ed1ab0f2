package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository keeps audit records in process memory. Used by tests
// and by deployments running without a database.
type InMemoryRepository struct {
	mu      sync.Mutex
	records []Record
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Append(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *InMemoryRepository) ListByActor(ctx context.Context, actor string, limit int) ([]Record, error) {
	return r.filter(normalizeLimit(limit), func(rec Record) bool {
		return rec.Actor == actor
	}), nil
}

func (r *InMemoryRepository) ListStudentSuggestions(ctx context.Context, limit int) ([]Record, error) {
	return r.filter(normalizeLimit(limit), func(rec Record) bool {
		return rec.StudentSuggestion && rec.Outcome == OutcomeOK
	}), nil
}

// filter returns matching records newest-first.
func (r *InMemoryRepository) filter(limit int, keep func(Record) bool) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(r.records[i]) {
			out = append(out, r.records[i])
		}
	}
	return out
}
