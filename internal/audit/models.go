package audit

import "time"

// Event is an immutable, append-only record of an intake pipeline action.
//
// Invariants:
// - Events are never updated or deleted.
// - Appending is best-effort; callers must not fail the intake flow on
//   audit errors.
//
// Storage recommendation (Postgres):
// - Table intake_audit_events with an INSERT-only policy.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the pipeline stage the record belongs to.
	Type EventType `json:"type" db:"type"`

	// Ownership identifiers when the stage knows them. Errors recorded
	// before correlation completes may carry neither.
	ProjectID string `json:"project_id,omitempty" db:"project_id"`
	UserID    string `json:"user_id,omitempty" db:"user_id"`

	// CallID is the vendor call identity when observed.
	CallID string `json:"call_id,omitempty" db:"call_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypePipeline EventType = "pipeline"
	EventTypeError    EventType = "error"
)
