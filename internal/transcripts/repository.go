package transcripts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for transcript records.
//
// Upsert is the ONLY write path. Both ingestion entry paths (vendor webhook
// and client-initiated save) may race on the same call identity; uniqueness
// of call_id at the storage layer is the ordering safety net, with
// last-write-wins on overlapping field updates.
type Repository interface {
	Upsert(ctx context.Context, rec Record) (Record, error)
	GetByCallID(ctx context.Context, callID string) (Record, bool, error)
}

var ErrInvalidRecord = errors.New("transcripts: invalid record")

// SQLRepository persists records in the vapi_transcripts table.
//
// Assumed schema:
//
//	CREATE TABLE vapi_transcripts (
//	  id               TEXT PRIMARY KEY,
//	  project_id       TEXT NOT NULL,
//	  user_id          TEXT NOT NULL,
//	  call_id          TEXT NOT NULL UNIQUE,
//	  status           TEXT NOT NULL,
//	  transcript_text  TEXT NOT NULL DEFAULT '',
//	  extracted_data   JSONB NOT NULL DEFAULT '{}',
//	  duration_seconds INT NOT NULL DEFAULT 0,
//	  metadata         JSONB NOT NULL DEFAULT '{}',
//	  created_at       TIMESTAMPTZ NOT NULL,
//	  updated_at       TIMESTAMPTZ NOT NULL
//	);
type SQLRepository struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db, clock: time.Now}
}

func (r *SQLRepository) Upsert(ctx context.Context, rec Record) (Record, error) {
	if rec.CallID == "" {
		return Record{}, ErrInvalidRecord
	}
	if rec.Status != StatusInProgress && rec.Status != StatusCompleted {
		return Record{}, ErrInvalidRecord
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	now := r.clock().UTC()
	extracted, err := marshalMap(rec.ExtractedData)
	if err != nil {
		return Record{}, err
	}
	meta, err := marshalMap(rec.Metadata)
	if err != nil {
		return Record{}, err
	}

	const q = `
INSERT INTO vapi_transcripts
  (id, project_id, user_id, call_id, status, transcript_text, extracted_data, duration_seconds, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (call_id) DO UPDATE SET
  project_id       = EXCLUDED.project_id,
  user_id          = EXCLUDED.user_id,
  status           = EXCLUDED.status,
  transcript_text  = EXCLUDED.transcript_text,
  extracted_data   = EXCLUDED.extracted_data,
  duration_seconds = EXCLUDED.duration_seconds,
  metadata         = EXCLUDED.metadata,
  updated_at       = EXCLUDED.updated_at
RETURNING id, created_at, updated_at
`
	if err := r.db.QueryRowContext(ctx, q,
		rec.ID,
		rec.ProjectID,
		rec.UserID,
		rec.CallID,
		string(rec.Status),
		rec.TranscriptText,
		extracted,
		rec.DurationSeconds,
		meta,
		now,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *SQLRepository) GetByCallID(ctx context.Context, callID string) (Record, bool, error) {
	if callID == "" {
		return Record{}, false, ErrInvalidRecord
	}
	const q = `
SELECT id, project_id, user_id, call_id, status, transcript_text, extracted_data, duration_seconds, metadata, created_at, updated_at
FROM vapi_transcripts
WHERE call_id = $1
`
	var (
		rec       Record
		status    string
		extracted []byte
		meta      []byte
	)
	if err := r.db.QueryRowContext(ctx, q, callID).Scan(
		&rec.ID,
		&rec.ProjectID,
		&rec.UserID,
		&rec.CallID,
		&status,
		&rec.TranscriptText,
		&extracted,
		&rec.DurationSeconds,
		&meta,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	rec.Status = Status(status)
	if err := unmarshalMap(extracted, &rec.ExtractedData); err != nil {
		return Record{}, false, err
	}
	if err := unmarshalMap(meta, &rec.Metadata); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func marshalMap(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func unmarshalMap(b []byte, dst *map[string]any) error {
	if len(b) == 0 {
		*dst = map[string]any{}
		return nil
	}
	return json.Unmarshal(b, dst)
}
