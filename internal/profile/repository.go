package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("profile: not found")

// Repository abstracts business-profile persistence.
// One row per project_id; GetByProject plus Save is enough for the
// get-or-create-then-merge access pattern.
type Repository interface {
	GetByProject(ctx context.Context, projectID string) (Profile, bool, error)
	GetByID(ctx context.Context, profileID string) (Profile, error)
	Save(ctx context.Context, p Profile) (Profile, error)
}

// SQLRepository persists profiles in the business_profiles table.
//
// Assumed schema:
//
//	CREATE TABLE business_profiles (
//	  id         TEXT PRIMARY KEY,
//	  user_id    TEXT NOT NULL,
//	  project_id TEXT NOT NULL UNIQUE,
//	  fields     JSONB NOT NULL DEFAULT '{}',
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	);
type SQLRepository struct {
	db    *sql.DB
	clock func() time.Time
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, clock: time.Now}
}

func (r *SQLRepository) GetByProject(ctx context.Context, projectID string) (Profile, bool, error) {
	const q = `
SELECT id, user_id, project_id, fields, created_at, updated_at
FROM business_profiles
WHERE project_id = $1
`
	return r.scanOne(r.db.QueryRowContext(ctx, q, projectID))
}

func (r *SQLRepository) GetByID(ctx context.Context, profileID string) (Profile, error) {
	const q = `
SELECT id, user_id, project_id, fields, created_at, updated_at
FROM business_profiles
WHERE id = $1
`
	p, ok, err := r.scanOne(r.db.QueryRowContext(ctx, q, profileID))
	if err != nil {
		return Profile{}, err
	}
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (r *SQLRepository) Save(ctx context.Context, p Profile) (Profile, error) {
	if p.ProjectID == "" || p.UserID == "" {
		return Profile{}, errors.New("profile: user_id and project_id required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	fields, err := json.Marshal(orEmpty(p.Fields))
	if err != nil {
		return Profile{}, err
	}
	now := r.clock().UTC()

	const q = `
INSERT INTO business_profiles (id, user_id, project_id, fields, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (project_id) DO UPDATE SET
  fields     = EXCLUDED.fields,
  updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at
`
	if err := r.db.QueryRowContext(ctx, q, p.ID, p.UserID, p.ProjectID, fields, now).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	return p, nil
}

func (r *SQLRepository) scanOne(row *sql.Row) (Profile, bool, error) {
	var (
		p      Profile
		fields []byte
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.ProjectID, &fields, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, false, nil
		}
		return Profile{}, false, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &p.Fields); err != nil {
			return Profile{}, false, err
		}
	}
	if p.Fields == nil {
		p.Fields = map[string]any{}
	}
	return p, true, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu        sync.Mutex
	byProject map[string]Profile
	clock     func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byProject: make(map[string]Profile), clock: time.Now}
}

func (r *MemoryRepo) GetByProject(_ context.Context, projectID string) (Profile, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byProject[projectID]
	return p, ok, nil
}

func (r *MemoryRepo) GetByID(_ context.Context, profileID string) (Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byProject {
		if p.ID == profileID {
			return p, nil
		}
	}
	return Profile{}, ErrNotFound
}

func (r *MemoryRepo) Save(_ context.Context, p Profile) (Profile, error) {
	if p.ProjectID == "" || p.UserID == "" {
		return Profile{}, errors.New("profile: user_id and project_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	if existing, ok := r.byProject[p.ProjectID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Fields == nil {
		p.Fields = map[string]any{}
	}
	r.byProject[p.ProjectID] = p
	return p, nil
}
