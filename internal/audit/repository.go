package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLRepository appends events to intake_audit_events. Insert-only.
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO intake_audit_events
    (id, type, project_id, user_id, call_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, q,
		e.ID, string(e.Type), e.ProjectID, e.UserID, e.CallID, e.Message, e.Metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}
