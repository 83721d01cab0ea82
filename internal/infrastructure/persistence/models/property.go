package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
)

// PropertyModel is the persistence model for a Property
type PropertyModel struct {
	BaseModel
	Name       string  `gorm:"type:varchar(200);not null"`
	Address    string  `gorm:"type:varchar(500)"`
	TotalUnits int     `gorm:"not null;default:0"`
	Latitude   float64 `gorm:"not null;index:idx_properties_location,priority:1"`
	Longitude  float64 `gorm:"not null;index:idx_properties_location,priority:2"`
}

// TableName returns the table name for GORM
func (PropertyModel) TableName() string {
	return "properties"
}

// ToDomain converts the persistence model to a domain Property
func (m *PropertyModel) ToDomain() *billing.Property {
	return &billing.Property{
		BaseEntity: m.BaseModel.ToDomain(),
		Name:       m.Name,
		Address:    m.Address,
		TotalUnits: m.TotalUnits,
		Latitude:   m.Latitude,
		Longitude:  m.Longitude,
	}
}

// PropertyModelFromDomain creates a persistence model from a domain Property
func PropertyModelFromDomain(p *billing.Property) *PropertyModel {
	m := &PropertyModel{
		Name:       p.Name,
		Address:    p.Address,
		TotalUnits: p.TotalUnits,
		Latitude:   p.Latitude,
		Longitude:  p.Longitude,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}

// UnitModel is the persistence model for a Unit. Its primary key is the
// "<propertyID>/<unitNumber>" path.
type UnitModel struct {
	ID         string     `gorm:"type:varchar(120);primaryKey"`
	PropertyID uuid.UUID  `gorm:"type:uuid;not null;index"`
	UnitNumber string     `gorm:"type:varchar(50);not null"`
	VacantFrom *time.Time `gorm:"type:date"`
	CreatedAt  time.Time  `gorm:"not null"`
	UpdatedAt  time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UnitModel) TableName() string {
	return "units"
}

// ToDomain converts the persistence model to a domain Unit
func (m *UnitModel) ToDomain() *billing.Unit {
	var vacant *time.Time
	if m.VacantFrom != nil {
		d := billing.DateOf(*m.VacantFrom)
		vacant = &d
	}
	return &billing.Unit{
		ID:         m.ID,
		PropertyID: m.PropertyID,
		UnitNumber: m.UnitNumber,
		VacantFrom: vacant,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// UnitModelFromDomain creates a persistence model from a domain Unit
func UnitModelFromDomain(u *billing.Unit) *UnitModel {
	return &UnitModel{
		ID:         u.ID,
		PropertyID: u.PropertyID,
		UnitNumber: u.UnitNumber,
		VacantFrom: u.VacantFrom,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// RenterModel is the persistence model for a Renter. Stored cards are kept
// as a JSON array since they are only ever read with their renter.
type RenterModel struct {
	BaseModel
	FirstName       string `gorm:"type:varchar(100);not null"`
	LastName        string `gorm:"type:varchar(100);not null"`
	ContactEmail    string `gorm:"type:varchar(200)"`
	ContactPhone    string `gorm:"type:varchar(50)"`
	ChatID          string `gorm:"type:varchar(100)"`
	CreditCardsJSON string `gorm:"column:credit_cards;type:jsonb;default:'[]'"`
}

// TableName returns the table name for GORM
func (RenterModel) TableName() string {
	return "renters"
}

// ToDomain converts the persistence model to a domain Renter
func (m *RenterModel) ToDomain() (*billing.Renter, error) {
	cards := make([]billing.StoredCard, 0)
	if m.CreditCardsJSON != "" {
		if err := json.Unmarshal([]byte(m.CreditCardsJSON), &cards); err != nil {
			return nil, err
		}
	}
	return &billing.Renter{
		BaseEntity:   shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		ContactEmail: m.ContactEmail,
		ContactPhone: m.ContactPhone,
		ChatID:       m.ChatID,
		CreditCards:  cards,
	}, nil
}

// RenterModelFromDomain creates a persistence model from a domain Renter
func RenterModelFromDomain(r *billing.Renter) (*RenterModel, error) {
	cards := r.CreditCards
	if cards == nil {
		cards = []billing.StoredCard{}
	}
	raw, err := json.Marshal(cards)
	if err != nil {
		return nil, err
	}
	m := &RenterModel{
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		ContactEmail:    r.ContactEmail,
		ContactPhone:    r.ContactPhone,
		ChatID:          r.ChatID,
		CreditCardsJSON: string(raw),
	}
	m.FromDomainBaseEntity(r.BaseEntity)
	return m, nil
}
