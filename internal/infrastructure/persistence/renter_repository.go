package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormRenterRepository implements billing.RenterRepository using GORM
type GormRenterRepository struct {
	db *gorm.DB
}

// NewGormRenterRepository creates a new GormRenterRepository
func NewGormRenterRepository(db *gorm.DB) *GormRenterRepository {
	return &GormRenterRepository{db: db}
}

// FindByID finds a renter by its ID
func (r *GormRenterRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Renter, error) {
	var model models.RenterModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain()
}

// FindByIDs loads several renters in one query
func (r *GormRenterRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]billing.Renter, error) {
	if len(ids) == 0 {
		return []billing.Renter{}, nil
	}
	var rows []models.RenterModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	renters := make([]billing.Renter, 0, len(rows))
	for i := range rows {
		renter, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		renters = append(renters, *renter)
	}
	return renters, nil
}

// ExistsByID checks whether a renter exists
func (r *GormRenterRepository) ExistsByID(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.RenterModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates a renter
func (r *GormRenterRepository) Save(ctx context.Context, renter *billing.Renter) error {
	model, err := models.RenterModelFromDomain(renter)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(model).Error
}
