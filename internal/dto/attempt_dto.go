package dto

import (
	"time"

	"github.com/talentforge/talentforge-api/internal/models"
)

// AttemptInviteRequest describes the payload for inviting a candidate.
type AttemptInviteRequest struct {
	AssessmentID   uint   `json:"assessment_id" validate:"required"`
	CandidateEmail string `json:"candidate_email" validate:"required,email"`
	CandidateName  string `json:"candidate_name" validate:"omitempty,min=2"`
}

// AttemptStartRequest describes the payload for a candidate starting an
// attempt. Credentials come from the ephemeral store, keyed by email.
type AttemptStartRequest struct {
	AssessmentID uint   `json:"assessment_id" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Language     string `json:"language" validate:"omitempty,min=1"`
}

// AttemptEvaluateRequest describes the grading payload for a completed
// attempt.
type AttemptEvaluateRequest struct {
	Score    float64                `json:"score" validate:"gte=0,lte=1"`
	Verdict  string                 `json:"verdict" validate:"required,min=2"`
	Feedback string                 `json:"feedback" validate:"omitempty"`
	Details  map[string]interface{} `json:"details" validate:"omitempty"`
}

// AttemptResponse is the serialized representation returned to API clients.
type AttemptResponse struct {
	ID             uint       `json:"id"`
	Status         string     `json:"status"`
	Language       string     `json:"language"`
	RepoURL        string     `json:"repo_url"`
	RepoFullName   string     `json:"repo_full_name"`
	CandidateID    uint       `json:"candidate_id"`
	CandidateEmail string     `json:"candidate_email"`
	AssessmentID   uint       `json:"assessment_id"`
	EvaluationID   *uint      `json:"evaluation_id"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	EvaluatedAt    *time.Time `json:"evaluated_at"`
	Overdue        bool       `json:"overdue"`
}

// NewAttemptResponse converts a model into a DTO. The overdue flag is derived
// from the preloaded assessment when available.
func NewAttemptResponse(model models.CandidateAttempt, reference time.Time) AttemptResponse {
	return AttemptResponse{
		ID:             model.ID,
		Status:         model.Status,
		Language:       model.Language,
		RepoURL:        model.RepoURL,
		RepoFullName:   model.RepoFullName,
		CandidateID:    model.CandidateID,
		CandidateEmail: model.Candidate.Email,
		AssessmentID:   model.AssessmentID,
		EvaluationID:   model.EvaluationID,
		CreatedAt:      model.CreatedAt,
		StartedAt:      model.StartedAt,
		CompletedAt:    model.CompletedAt,
		EvaluatedAt:    model.EvaluatedAt,
		Overdue:        model.IsOverdue(model.Assessment, reference),
	}
}

// NewAttemptResponseSlice converts a slice of models into DTOs.
func NewAttemptResponseSlice(attempts []models.CandidateAttempt, reference time.Time) []AttemptResponse {
	responses := make([]AttemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, NewAttemptResponse(attempt, reference))
	}

	return responses
}
