package projects

import "time"

// Project is a funnel project owned by a single user. Intake sessions,
// transcripts and the business profile all hang off a project.
//
// NOTE: This is a domain model only. Generated page content and ad copy are
// stored by unrelated flows and are not mixed into this model.
type Project struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
