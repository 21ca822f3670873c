package profile

import "time"

// Profile is the long-lived business profile, one per funnel project.
// Intake sessions (voice calls, uploads, pasted text, scrapes) merge into it
// over time; downstream page and ad-copy generation reads from it.
type Profile struct {
	ID        string `json:"id" db:"id"`
	UserID    string `json:"user_id" db:"user_id"`
	ProjectID string `json:"project_id" db:"project_id"`

	// Fields holds merged business facts (business name, industry, audience,
	// offer, pricing, ...). Keys are free-form; merge fills gaps and never
	// overwrites a non-empty existing value.
	Fields map[string]any `json:"fields" db:"fields"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Intake is the payload handed to PopulateFromIntake after a transcript
// completes. ExtractedData may be empty; the populator then falls back to
// LLM extraction from the transcript text.
type Intake struct {
	TranscriptText string         `json:"transcript_text"`
	ExtractedData  map[string]any `json:"extracted_data"`
}

// Source kinds for intake provenance.
const (
	SourceVoice  = "voice"
	SourceUpload = "upload"
	SourcePaste  = "paste"
	SourceScrape = "scrape"
)
