package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// LeaseModel is the persistence model for the Lease aggregate root
type LeaseModel struct {
	AggregateModel
	UnitID          string             `gorm:"type:varchar(120);not null;index"`
	LeaseAmount     decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	StartDate       time.Time          `gorm:"type:date;not null;index:idx_leases_period,priority:1"`
	EndDate         time.Time          `gorm:"type:date;not null;index:idx_leases_period,priority:2"`
	LegalDocumentID string             `gorm:"type:varchar(100)"`
	PowerUnitPrice  decimal.Decimal    `gorm:"type:decimal(18,6);not null"`
	WaterUnitPrice  decimal.Decimal    `gorm:"type:decimal(18,6);not null"`
	Renters         []LeaseRenterModel `gorm:"foreignKey:LeaseID;references:ID"`
}

// TableName returns the table name for GORM
func (LeaseModel) TableName() string {
	return "leases"
}

// LeaseRenterModel links a lease to one of its renters
type LeaseRenterModel struct {
	LeaseID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	RenterID uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Position int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (LeaseRenterModel) TableName() string {
	return "lease_renters"
}

// ToDomain converts the persistence model to a domain Lease
func (m *LeaseModel) ToDomain() *billing.Lease {
	return &billing.Lease{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		UnitID:            m.UnitID,
		RenterIDs:         leaseRenterIDs(m.Renters),
		LeaseAmount:       m.LeaseAmount,
		StartDate:         billing.DateOf(m.StartDate),
		EndDate:           billing.DateOf(m.EndDate),
		LegalDocumentID:   m.LegalDocumentID,
		PowerUnitPrice:    m.PowerUnitPrice,
		WaterUnitPrice:    m.WaterUnitPrice,
	}
}

// LeaseModelFromDomain creates a persistence model from a domain Lease
func LeaseModelFromDomain(l *billing.Lease) *LeaseModel {
	m := &LeaseModel{
		UnitID:          l.UnitID,
		LeaseAmount:     l.LeaseAmount,
		StartDate:       l.StartDate,
		EndDate:         l.EndDate,
		LegalDocumentID: l.LegalDocumentID,
		PowerUnitPrice:  l.PowerUnitPrice,
		WaterUnitPrice:  l.WaterUnitPrice,
		Renters:         make([]LeaseRenterModel, len(l.RenterIDs)),
	}
	m.FromDomainAggregateRoot(l.BaseAggregateRoot)
	for i, id := range l.RenterIDs {
		m.Renters[i] = LeaseRenterModel{LeaseID: l.ID, RenterID: id, Position: i}
	}
	return m
}

// leaseRenterIDs expects links preloaded in position order
func leaseRenterIDs(links []LeaseRenterModel) []uuid.UUID {
	ids := make([]uuid.UUID, len(links))
	for i := range links {
		ids[i] = links[i].RenterID
	}
	return ids
}
