package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assessment statuses.
const (
	AssessmentStatusDraft    = "DRAFT"
	AssessmentStatusActive   = "ACTIVE"
	AssessmentStatusInactive = "INACTIVE"
)

// Assessment represents a template repository and the rules for attempting it.
type Assessment struct {
	ID                   uint               `gorm:"primaryKey" json:"id"`
	Name                 string             `gorm:"size:255;not null" json:"name"`
	Description          string             `gorm:"type:text" json:"description"`
	Status               string             `gorm:"size:16;not null;default:DRAFT" json:"status"`
	StartDate            *time.Time         `json:"start_date"`
	EndDate              *time.Time         `json:"end_date"`
	DurationMinutes      int                `gorm:"not null" json:"duration_minutes"`
	TemplateRepoFullName string             `gorm:"size:255" json:"template_repo_full_name"`
	TemplateRepoURL      string             `gorm:"size:512" json:"template_repo_url"`
	UserID               uint               `gorm:"index;not null" json:"user_id"`
	User                 User               `json:"-"`
	Skills               datatypes.JSON     `gorm:"type:json" json:"skills"`
	LanguageOptions      datatypes.JSON     `gorm:"type:json" json:"language_options"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	Attempts             []CandidateAttempt `json:"-"`
}

// IsPastEnd returns true when the assessment end date has already passed.
func (a Assessment) IsPastEnd(reference time.Time) bool {
	return a.EndDate != nil && reference.After(*a.EndDate)
}

// ExpireIfDue flips an ACTIVE assessment whose end date has passed to INACTIVE.
// It reports whether the status changed. Non-ACTIVE assessments are never touched.
func (a *Assessment) ExpireIfDue(reference time.Time) bool {
	if a.Status != AssessmentStatusActive {
		return false
	}
	if !a.IsPastEnd(reference) {
		return false
	}

	a.Status = AssessmentStatusInactive
	return true
}

// Duration returns the allowed attempt duration.
func (a Assessment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}
