package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository implements billing.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByID finds a payment with its methods and allocations
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).
		Preload("Methods", byPosition).
		Preload("Allocations", byPosition).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// SaveWithDebts writes the mutated debts and the payment atomically. Every
// debt carries the version it will have after the write; the update only
// matches the row at the version before it. A miss rolls the whole
// transaction back with a CONCURRENCY_CONFLICT error.
func (r *GormPaymentRepository) SaveWithDebts(ctx context.Context, payment *billing.Payment, debts []*billing.DebtItem) error {
	model := models.PaymentModelFromDomain(payment)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range debts {
			result := tx.Model(&models.DebtItemModel{}).
				Where("id = ? AND version = ?", d.ID, d.Version-1).
				Updates(map[string]any{
					"amount_paid": d.AmountPaid,
					"version":     d.Version,
					"updated_at":  d.UpdatedAt,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return shared.NewConflictError("Debt item %s was modified by another payment", d.ID)
			}
		}

		if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}
		if len(model.Methods) > 0 {
			if err := tx.Create(&model.Methods).Error; err != nil {
				return err
			}
		}
		if len(model.Allocations) > 0 {
			if err := tx.Create(&model.Allocations).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
