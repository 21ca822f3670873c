package projects

import (
	"context"
	"database/sql"
	"errors"
)

var ErrNotFound = errors.New("projects: not found")

// Repository abstracts project lookups.
//
// Ownership invariant: every query is scoped by user_id. There is no
// unscoped read path.
type Repository interface {
	// GetOwned returns the project only when it belongs to userID.
	GetOwned(ctx context.Context, projectID, userID string) (Project, error)
}

// SQLRepository reads the funnel_projects table.
//
// Assumed schema:
//
//	CREATE TABLE funnel_projects (
//	  id         TEXT PRIMARY KEY,
//	  user_id    TEXT NOT NULL,
//	  name       TEXT NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	);
type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) GetOwned(ctx context.Context, projectID, userID string) (Project, error) {
	if projectID == "" || userID == "" {
		return Project{}, ErrNotFound
	}
	const q = `
SELECT id, user_id, name, created_at, updated_at
FROM funnel_projects
WHERE id = $1 AND user_id = $2
`
	var p Project
	if err := r.db.QueryRowContext(ctx, q, projectID, userID).Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, err
	}
	return p, nil
}
