package models

import (
	"time"

	"gorm.io/datatypes"
)

// Evaluation holds the grading outcome for a completed attempt.
type Evaluation struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Score     float64           `gorm:"not null" json:"score"`
	Verdict   string            `gorm:"size:64" json:"verdict"`
	Feedback  string            `gorm:"type:text" json:"feedback"`
	Details   datatypes.JSONMap `gorm:"type:json" json:"details"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
