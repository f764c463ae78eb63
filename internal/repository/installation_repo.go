package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/talentforge/talentforge-api/internal/models"
)

// InstallationRepository defines persistence operations for VCS app
// installations.
type InstallationRepository interface {
	GetByInstallationID(ctx context.Context, installationID int64) (models.Installation, error)
	GetByUser(ctx context.Context, userID uint) (models.Installation, error)
	Create(ctx context.Context, installation *models.Installation) error
	Update(ctx context.Context, installation *models.Installation) error
}

type installationRepository struct {
	db *gorm.DB
}

// NewInstallationRepository instantiates a GORM-backed repository.
func NewInstallationRepository(db *gorm.DB) InstallationRepository {
	return &installationRepository{db: db}
}

func (r *installationRepository) GetByInstallationID(ctx context.Context, installationID int64) (models.Installation, error) {
	var installation models.Installation
	if err := r.db.WithContext(ctx).Where("installation_id = ?", installationID).First(&installation).Error; err != nil {
		return models.Installation{}, err
	}

	return installation, nil
}

func (r *installationRepository) GetByUser(ctx context.Context, userID uint) (models.Installation, error) {
	var installation models.Installation
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&installation).Error; err != nil {
		return models.Installation{}, err
	}

	return installation, nil
}

func (r *installationRepository) Create(ctx context.Context, installation *models.Installation) error {
	return r.db.WithContext(ctx).Create(installation).Error
}

func (r *installationRepository) Update(ctx context.Context, installation *models.Installation) error {
	return r.db.WithContext(ctx).Save(installation).Error
}
