package transcripts

import "time"

// Record is one persisted transcript per real or attempted voice intake call.
//
// Invariant: exactly one row per CallID. Rows are created optimistically with
// StatusInProgress when a call-started signal is observed server-side and
// overwritten with StatusCompleted once the ended call's artifact is fetched.
// This flow never deletes rows; cascade deletes belong to project removal.
type Record struct {
	ID        string `json:"id" db:"id"`
	ProjectID string `json:"project_id" db:"project_id"`
	UserID    string `json:"user_id" db:"user_id"`

	// CallID is the vendor-assigned call identity; unique key for upserts.
	CallID string `json:"call_id" db:"call_id"`

	Status Status `json:"status" db:"status"`

	TranscriptText string `json:"transcript_text" db:"transcript_text"`

	// ExtractedData holds vendor/LLM-derived key facts; may be empty.
	ExtractedData map[string]any `json:"extracted_data" db:"extracted_data"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	// Metadata is free-form (recording URL, end reason, cost).
	Metadata map[string]any `json:"metadata" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)
