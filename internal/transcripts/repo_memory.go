package transcripts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository keyed by call identity.
// It mirrors the SQL upsert semantics and is intended for tests.
type MemoryRepo struct {
	mu      sync.Mutex
	byCall  map[string]Record
	clock   func() time.Time
	Upserts int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byCall: make(map[string]Record),
		clock:  time.Now,
	}
}

func (r *MemoryRepo) Upsert(_ context.Context, rec Record) (Record, error) {
	if rec.CallID == "" {
		return Record{}, ErrInvalidRecord
	}
	if rec.Status != StatusInProgress && rec.Status != StatusCompleted {
		return Record{}, ErrInvalidRecord
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Upserts++

	now := r.clock().UTC()
	if existing, ok := r.byCall[rec.CallID]; ok {
		// keep the original row identity and creation time
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.byCall[rec.CallID] = rec
	return rec, nil
}

func (r *MemoryRepo) GetByCallID(_ context.Context, callID string) (Record, bool, error) {
	if callID == "" {
		return Record{}, false, ErrInvalidRecord
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byCall[callID]
	return rec, ok, nil
}

// Len reports the number of distinct call identities stored.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byCall)
}
