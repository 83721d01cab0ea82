package models

import (
	"time"

	"github.com/rentals/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// MeterReadingModel is one stored utility sample
type MeterReadingModel struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	UnitID    string          `gorm:"type:varchar(120);not null;index:idx_meter_readings_series,priority:1"`
	Kind      string          `gorm:"type:varchar(10);not null;index:idx_meter_readings_series,priority:2"`
	Timestamp time.Time       `gorm:"column:ts;not null;index:idx_meter_readings_series,priority:3"`
	Value     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Tag       string          `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (MeterReadingModel) TableName() string {
	return "meter_readings"
}

// ToDomain converts the persistence model to a domain MeterReading
func (m *MeterReadingModel) ToDomain() billing.MeterReading {
	return billing.MeterReading{
		UnitID:    m.UnitID,
		Kind:      billing.UtilityKind(m.Kind),
		Timestamp: m.Timestamp.UTC(),
		Value:     m.Value,
		Tag:       m.Tag,
	}
}

// MeterReadingModelFromDomain creates a persistence model from a domain MeterReading
func MeterReadingModelFromDomain(r billing.MeterReading) *MeterReadingModel {
	return &MeterReadingModel{
		UnitID:    r.UnitID,
		Kind:      string(r.Kind),
		Timestamp: r.Timestamp,
		Value:     r.Value,
		Tag:       r.Tag,
	}
}

// AllBillingModels lists every billing model in dependency order, for
// AutoMigrate in tests and local tooling
func AllBillingModels() []any {
	return []any{
		&PropertyModel{},
		&UnitModel{},
		&RenterModel{},
		&LeaseModel{},
		&LeaseRenterModel{},
		&DebtItemModel{},
		&DebtItemRenterModel{},
		&PaymentModel{},
		&PaymentMethodModel{},
		&PaymentAllocationModel{},
		&MeterReadingModel{},
	}
}
