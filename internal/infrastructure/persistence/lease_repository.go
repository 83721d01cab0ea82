package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLeaseRepository implements billing.LeaseRepository using GORM
type GormLeaseRepository struct {
	db *gorm.DB
}

// NewGormLeaseRepository creates a new GormLeaseRepository
func NewGormLeaseRepository(db *gorm.DB) *GormLeaseRepository {
	return &GormLeaseRepository{db: db}
}

func orderedLeaseRenters(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByID finds a lease by its ID
func (r *GormLeaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Lease, error) {
	var model models.LeaseModel
	if err := r.db.WithContext(ctx).
		Preload("Renters", orderedLeaseRenters).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveOn returns leases whose inclusive [start, end] range contains day
func (r *GormLeaseRepository) FindActiveOn(ctx context.Context, day time.Time) ([]billing.Lease, error) {
	day = billing.DateOf(day)
	var rows []models.LeaseModel
	if err := r.db.WithContext(ctx).
		Preload("Renters", orderedLeaseRenters).
		Where("start_date <= ? AND end_date >= ?", day, day).
		Order("start_date ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	leases := make([]billing.Lease, len(rows))
	for i := range rows {
		leases[i] = *rows[i].ToDomain()
	}
	return leases, nil
}

// FindActiveByUnit returns the lease active on day for a unit
func (r *GormLeaseRepository) FindActiveByUnit(ctx context.Context, unitID string, day time.Time) (*billing.Lease, error) {
	day = billing.DateOf(day)
	var model models.LeaseModel
	if err := r.db.WithContext(ctx).
		Preload("Renters", orderedLeaseRenters).
		Where("unit_id = ? AND start_date <= ? AND end_date >= ?", unitID, day, day).
		Order("start_date DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// SaveWithUnit stores the lease and its unit in one transaction. A lease at
// version 1 is inserted; a later version is written only if the stored row
// is still at the previous version.
func (r *GormLeaseRepository) SaveWithUnit(ctx context.Context, lease *billing.Lease, unit *billing.Unit) error {
	model := models.LeaseModelFromDomain(lease)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if lease.Version <= 1 {
			if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
				return err
			}
			if len(model.Renters) > 0 {
				if err := tx.Create(&model.Renters).Error; err != nil {
					return err
				}
			}
		} else {
			result := tx.Model(&models.LeaseModel{}).
				Where("id = ? AND version = ?", lease.ID, lease.Version-1).
				Updates(map[string]any{
					"end_date":   model.EndDate,
					"version":    model.Version,
					"updated_at": model.UpdatedAt,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return shared.NewConflictError("Lease %s was modified by another process", lease.ID)
			}
		}
		if unit != nil {
			return tx.Save(models.UnitModelFromDomain(unit)).Error
		}
		return nil
	})
}
