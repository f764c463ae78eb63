package dto

import (
	"encoding/json"
	"time"

	"github.com/talentforge/talentforge-api/internal/models"
)

// AssessmentCreateRequest describes the payload for creating a new assessment.
// Creation also provisions the template repository on the VCS host.
type AssessmentCreateRequest struct {
	Name            string   `json:"name" validate:"required,min=3"`
	Description     string   `json:"description" validate:"omitempty,min=10"`
	StartDate       *string  `json:"start_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndDate         *string  `json:"end_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DurationMinutes int      `json:"duration_minutes" validate:"required,gt=0"`
	RepoName        string   `json:"repo_name" validate:"omitempty,min=3,max=100"`
	Skills          []string `json:"skills" validate:"omitempty,dive,min=1"`
	LanguageOptions []string `json:"language_options" validate:"omitempty,dive,min=1"`
}

// AssessmentUpdateRequest describes the payload for updating an assessment.
type AssessmentUpdateRequest struct {
	Name            *string  `json:"name" validate:"omitempty,min=3"`
	Description     *string  `json:"description" validate:"omitempty,min=10"`
	StartDate       *string  `json:"start_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	EndDate         *string  `json:"end_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	DurationMinutes *int     `json:"duration_minutes" validate:"omitempty,gt=0"`
	Skills          []string `json:"skills" validate:"omitempty,dive,min=1"`
	LanguageOptions []string `json:"language_options" validate:"omitempty,dive,min=1"`
}

// AssessmentFilter describes list query options.
type AssessmentFilter struct {
	Search   string `query:"search"`
	Status   string `query:"status" validate:"omitempty,oneof=DRAFT ACTIVE INACTIVE"`
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// AssessmentResponse is the serialized representation returned to API clients.
type AssessmentResponse struct {
	ID                   uint       `json:"id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	Status               string     `json:"status"`
	StartDate            *time.Time `json:"start_date"`
	EndDate              *time.Time `json:"end_date"`
	DurationMinutes      int        `json:"duration_minutes"`
	TemplateRepoFullName string     `json:"template_repo_full_name"`
	TemplateRepoURL      string     `json:"template_repo_url"`
	Skills               []string   `json:"skills"`
	LanguageOptions      []string   `json:"language_options"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewAssessmentResponse converts a model into a DTO.
func NewAssessmentResponse(model models.Assessment) AssessmentResponse {
	return AssessmentResponse{
		ID:                   model.ID,
		Name:                 model.Name,
		Description:          model.Description,
		Status:               model.Status,
		StartDate:            model.StartDate,
		EndDate:              model.EndDate,
		DurationMinutes:      model.DurationMinutes,
		TemplateRepoFullName: model.TemplateRepoFullName,
		TemplateRepoURL:      model.TemplateRepoURL,
		Skills:               decodeStringList([]byte(model.Skills)),
		LanguageOptions:      decodeStringList([]byte(model.LanguageOptions)),
		CreatedAt:            model.CreatedAt,
		UpdatedAt:            model.UpdatedAt,
	}
}

// NewAssessmentResponseSlice converts a slice of models into DTOs.
func NewAssessmentResponseSlice(assessments []models.Assessment) []AssessmentResponse {
	responses := make([]AssessmentResponse, 0, len(assessments))
	for _, assessment := range assessments {
		responses = append(responses, NewAssessmentResponse(assessment))
	}

	return responses
}

func decodeStringList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}

	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}

	return values
}
