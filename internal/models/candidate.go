package models

import "time"

// Candidate represents an invited assessment taker. Candidates have no login of
// their own; their VCS credentials live only in the ephemeral store.
type Candidate struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	Email       string             `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name        string             `gorm:"size:255" json:"name"`
	GithubLogin string             `gorm:"size:255" json:"github_login"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Attempts    []CandidateAttempt `json:"-"`
}
