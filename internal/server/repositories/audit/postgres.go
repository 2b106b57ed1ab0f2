package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wikicampus/wikicampus/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query :=
		`INSERT INTO audit_log
		   (id, actor, actor_entity_id, kind, entity_id, property, value,
		    student_suggestion, edit_group_id, outcome, err_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 `

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Actor, rec.ActorEntityID, rec.Kind, rec.EntityID,
		rec.Property, rec.Value, rec.StudentSuggestion, rec.EditGroupID,
		rec.Outcome, rec.ErrMessage, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByActor(ctx context.Context, actor string, limit int) ([]Record, error) {
	query :=
		`SELECT id, actor, actor_entity_id, kind, entity_id, property, value,
		        student_suggestion, edit_group_id, outcome, err_message, created_at
		 FROM audit_log
		 WHERE actor = $1
		 ORDER BY created_at DESC
		 LIMIT $2
		 `
	return r.list(ctx, query, actor, normalizeLimit(limit))
}

func (r *PostgresRepository) ListStudentSuggestions(ctx context.Context, limit int) ([]Record, error) {
	query :=
		`SELECT id, actor, actor_entity_id, kind, entity_id, property, value,
		        student_suggestion, edit_group_id, outcome, err_message, created_at
		 FROM audit_log
		 WHERE student_suggestion AND outcome = 'ok'
		 ORDER BY created_at DESC
		 LIMIT $1
		 `
	return r.list(ctx, query, normalizeLimit(limit))
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(&rec.ID, &rec.Actor, &rec.ActorEntityID, &rec.Kind,
			&rec.EntityID, &rec.Property, &rec.Value, &rec.StudentSuggestion,
			&rec.EditGroupID, &rec.Outcome, &rec.ErrMessage, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
