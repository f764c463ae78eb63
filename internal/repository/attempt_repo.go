package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/talentforge/talentforge-api/internal/models"
)

// AttemptRepository defines persistence operations for candidate attempts.
type AttemptRepository interface {
	GetByID(ctx context.Context, id uint) (models.CandidateAttempt, error)
	GetByPair(ctx context.Context, candidateID, assessmentID uint) (models.CandidateAttempt, error)
	ListByAssessment(ctx context.Context, assessmentID uint) ([]models.CandidateAttempt, error)
	Create(ctx context.Context, attempt *models.CandidateAttempt) error
	Update(ctx context.Context, attempt *models.CandidateAttempt) error
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository instantiates a GORM-backed repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.CandidateAttempt, error) {
	var attempt models.CandidateAttempt
	if err := r.db.WithContext(ctx).Preload("Candidate").Preload("Assessment").First(&attempt, id).Error; err != nil {
		return models.CandidateAttempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) GetByPair(ctx context.Context, candidateID, assessmentID uint) (models.CandidateAttempt, error) {
	var attempt models.CandidateAttempt
	err := r.db.WithContext(ctx).
		Preload("Candidate").
		Preload("Assessment").
		Where("candidate_id = ? AND assessment_id = ?", candidateID, assessmentID).
		First(&attempt).Error
	if err != nil {
		return models.CandidateAttempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) ListByAssessment(ctx context.Context, assessmentID uint) ([]models.CandidateAttempt, error) {
	var attempts []models.CandidateAttempt
	err := r.db.WithContext(ctx).
		Preload("Candidate").
		Where("assessment_id = ?", assessmentID).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}

	return attempts, nil
}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.CandidateAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepository) Update(ctx context.Context, attempt *models.CandidateAttempt) error {
	return r.db.WithContext(ctx).Save(attempt).Error
}
