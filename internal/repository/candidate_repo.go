package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/talentforge/talentforge-api/internal/models"
)

// CandidateRepository defines persistence operations for candidates.
type CandidateRepository interface {
	GetByID(ctx context.Context, id uint) (models.Candidate, error)
	GetByEmail(ctx context.Context, email string) (models.Candidate, error)
	Create(ctx context.Context, candidate *models.Candidate) error
	Update(ctx context.Context, candidate *models.Candidate) error
}

type candidateRepository struct {
	db *gorm.DB
}

// NewCandidateRepository instantiates a GORM-backed repository.
func NewCandidateRepository(db *gorm.DB) CandidateRepository {
	return &candidateRepository{db: db}
}

func (r *candidateRepository) GetByID(ctx context.Context, id uint) (models.Candidate, error) {
	var candidate models.Candidate
	if err := r.db.WithContext(ctx).First(&candidate, id).Error; err != nil {
		return models.Candidate{}, err
	}

	return candidate, nil
}

func (r *candidateRepository) GetByEmail(ctx context.Context, email string) (models.Candidate, error) {
	var candidate models.Candidate
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&candidate).Error; err != nil {
		return models.Candidate{}, err
	}

	return candidate, nil
}

func (r *candidateRepository) Create(ctx context.Context, candidate *models.Candidate) error {
	return r.db.WithContext(ctx).Create(candidate).Error
}

func (r *candidateRepository) Update(ctx context.Context, candidate *models.Candidate) error {
	return r.db.WithContext(ctx).Save(candidate).Error
}
