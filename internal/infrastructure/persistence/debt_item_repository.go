package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDebtItemRepository implements billing.DebtItemRepository using GORM
type GormDebtItemRepository struct {
	db *gorm.DB
}

// NewGormDebtItemRepository creates a new GormDebtItemRepository
func NewGormDebtItemRepository(db *gorm.DB) *GormDebtItemRepository {
	return &GormDebtItemRepository{db: db}
}

func orderedDebtRenters(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByID finds a debt item by its ID
func (r *GormDebtItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.DebtItem, error) {
	var model models.DebtItemModel
	if err := r.db.WithContext(ctx).
		Preload("Renters", orderedDebtRenters).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDs loads several debt items in one query. Missing IDs are absent
// from the result; the caller decides whether that is an error.
func (r *GormDebtItemRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]billing.DebtItem, error) {
	if len(ids) == 0 {
		return []billing.DebtItem{}, nil
	}
	var rows []models.DebtItemModel
	if err := r.db.WithContext(ctx).
		Preload("Renters", orderedDebtRenters).
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDebtItems(rows), nil
}

// FindOutstanding returns unpaid debts ordered by due date, optionally
// limited to properties inside a bounding box
func (r *GormDebtItemRepository) FindOutstanding(ctx context.Context, filter billing.OutstandingFilter) ([]billing.OutstandingDebt, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = billing.DefaultOutstandingLimit
	}
	if limit > billing.MaxOutstandingLimit {
		limit = billing.MaxOutstandingLimit
	}

	query := r.db.WithContext(ctx).
		Preload("Renters", orderedDebtRenters).
		Where("amount_due > amount_paid")
	if b := filter.Bounds; b != nil {
		inBox := r.db.WithContext(ctx).Model(&models.PropertyModel{}).Select("id").
			Where("latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?", b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
		query = query.Where("property_id IN (?)", inBox)
	}

	var rows []models.DebtItemModel
	if err := query.Order("due_date ASC, id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	names, err := r.propertyNames(ctx, rows)
	if err != nil {
		return nil, err
	}
	result := make([]billing.OutstandingDebt, len(rows))
	for i := range rows {
		result[i] = billing.OutstandingDebt{DebtItem: *rows[i].ToDomain()}
		if rows[i].PropertyID != nil {
			result[i].PropertyName = names[*rows[i].PropertyID]
		}
	}
	return result, nil
}

func (r *GormDebtItemRepository) propertyNames(ctx context.Context, rows []models.DebtItemModel) (map[uuid.UUID]string, error) {
	seen := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0)
	for i := range rows {
		if id := rows[i].PropertyID; id != nil {
			if _, ok := seen[*id]; !ok {
				seen[*id] = struct{}{}
				ids = append(ids, *id)
			}
		}
	}
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var props []models.PropertyModel
	if err := r.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&props).Error; err != nil {
		return nil, err
	}
	for _, p := range props {
		names[p.ID] = p.Name
	}
	return names, nil
}

// FindByRenter returns debts the renter is primary on or listed against
func (r *GormDebtItemRepository) FindByRenter(ctx context.Context, renterID uuid.UUID, onlyOutstanding bool) ([]billing.DebtItem, error) {
	linked := r.db.WithContext(ctx).Model(&models.DebtItemRenterModel{}).Select("debt_item_id").Where("renter_id = ?", renterID)
	query := r.db.WithContext(ctx).
		Preload("Renters", orderedDebtRenters).
		Where(r.db.Where("renter_id = ?", renterID).Or("id IN (?)", linked))
	if onlyOutstanding {
		query = query.Where("amount_due > amount_paid")
	}

	var rows []models.DebtItemModel
	if err := query.Order("due_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDebtItems(rows), nil
}

// Create stores a new debt item with its renter links
func (r *GormDebtItemRepository) Create(ctx context.Context, debt *billing.DebtItem) error {
	model := models.DebtItemModelFromDomain(debt)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertDebt(tx, model)
	})
}

// CreateCharges inserts generated charges in one transaction. A charge whose
// (lease_id, charge_key) already exists is skipped, so concurrent or repeated
// runs for the same day create each charge at most once.
func (r *GormDebtItemRepository) CreateCharges(ctx context.Context, debts []*billing.DebtItem) ([]*billing.DebtItem, error) {
	created := make([]*billing.DebtItem, 0, len(debts))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created = created[:0]
		for _, d := range debts {
			model := models.DebtItemModelFromDomain(d)
			result := tx.Omit(clause.Associations).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "lease_id"}, {Name: "charge_key"}},
					DoNothing: true,
				}).
				Create(model)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				continue
			}
			if len(model.Renters) > 0 {
				if err := tx.Create(&model.Renters).Error; err != nil {
					return err
				}
			}
			created = append(created, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func insertDebt(tx *gorm.DB, model *models.DebtItemModel) error {
	if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
		return err
	}
	if len(model.Renters) == 0 {
		return nil
	}
	return tx.Create(&model.Renters).Error
}

func toDebtItems(rows []models.DebtItemModel) []billing.DebtItem {
	items := make([]billing.DebtItem, len(rows))
	for i := range rows {
		items[i] = *rows[i].ToDomain()
	}
	return items
}

// OutstandingTotals sums the positive balances across the ledger
func (r *GormDebtItemRepository) OutstandingTotals(ctx context.Context) (decimal.Decimal, int64, error) {
	var row struct {
		Balance decimal.Decimal
		Debts   int64
	}
	if err := r.db.WithContext(ctx).Model(&models.DebtItemModel{}).
		Select("COALESCE(SUM(amount_due - amount_paid), 0) AS balance, COUNT(*) AS debts").
		Where("amount_due > amount_paid").
		Scan(&row).Error; err != nil {
		return decimal.Zero, 0, err
	}
	return row.Balance, row.Debts, nil
}
