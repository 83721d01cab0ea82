package persistence

import (
	"context"
	"time"

	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const readingBatchSize = 500

// GormReadingStore implements billing.ReadingStore on the meter_readings table
type GormReadingStore struct {
	db *gorm.DB
}

// NewGormReadingStore creates a new GormReadingStore
func NewGormReadingStore(db *gorm.DB) *GormReadingStore {
	return &GormReadingStore{db: db}
}

// Append stores readings in batches
func (s *GormReadingStore) Append(ctx context.Context, readings []billing.MeterReading) error {
	if len(readings) == 0 {
		return nil
	}
	rows := make([]*models.MeterReadingModel, len(readings))
	for i, r := range readings {
		rows[i] = models.MeterReadingModelFromDomain(r)
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, readingBatchSize).Error
}

// SumReadings returns the plain sum of values with from <= ts < to
func (s *GormReadingStore) SumReadings(ctx context.Context, unitID string, kind billing.UtilityKind, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := s.db.WithContext(ctx).Model(&models.MeterReadingModel{}).
		Select("SUM(value)").
		Where("unit_id = ? AND kind = ? AND ts >= ? AND ts < ?", unitID, string(kind), from.UTC(), to.UTC()).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// HourlyUsage returns per-hour sums with from <= ts < to. Hours without
// readings are omitted.
func (s *GormReadingStore) HourlyUsage(ctx context.Context, unitID string, kind billing.UtilityKind, from, to time.Time) ([]billing.UsagePoint, error) {
	var rows []models.MeterReadingModel
	err := s.db.WithContext(ctx).
		Select("ts", "value").
		Where("unit_id = ? AND kind = ? AND ts >= ? AND ts < ?", unitID, string(kind), from.UTC(), to.UTC()).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	points := make([]billing.UsagePoint, 0)
	for _, row := range rows {
		hour := row.Timestamp.UTC().Truncate(time.Hour)
		if n := len(points); n > 0 && points[n-1].Timestamp.Equal(hour) {
			points[n-1].Value = points[n-1].Value.Add(row.Value)
			continue
		}
		points = append(points, billing.UsagePoint{Timestamp: hour, Value: row.Value})
	}
	return points, nil
}
