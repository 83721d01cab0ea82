package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/shopspring/decimal"
)

// DebtItemModel is the persistence model for the DebtItem aggregate root.
// (lease_id, charge_key) is unique so a charge run can never bill the same
// period twice. Fees store a NULL key and never collide, even on a lease.
type DebtItemModel struct {
	AggregateModel
	LeaseID     *uuid.UUID            `gorm:"type:uuid;uniqueIndex:idx_debt_items_lease_charge,priority:1"`
	ChargeKey   *string               `gorm:"type:varchar(50);uniqueIndex:idx_debt_items_lease_charge,priority:2"`
	UnitID      string                `gorm:"type:varchar(120);index"`
	PropertyID  *uuid.UUID            `gorm:"type:uuid;index"`
	RenterID    uuid.UUID             `gorm:"type:uuid;not null;index"`
	Type        string                `gorm:"type:varchar(20);not null"`
	Description string                `gorm:"type:varchar(500)"`
	AmountDue   decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	AmountPaid  decimal.Decimal       `gorm:"type:decimal(18,2);not null;default:0"`
	DueDate     time.Time             `gorm:"type:date;not null;index"`
	Renters     []DebtItemRenterModel `gorm:"foreignKey:DebtItemID;references:ID"`
}

// TableName returns the table name for GORM
func (DebtItemModel) TableName() string {
	return "debt_items"
}

// DebtItemRenterModel links a debt item to one of the renters responsible for it
type DebtItemRenterModel struct {
	DebtItemID uuid.UUID `gorm:"type:uuid;primaryKey"`
	RenterID   uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Position   int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (DebtItemRenterModel) TableName() string {
	return "debt_item_renters"
}

// ToDomain converts the persistence model to a domain DebtItem
func (m *DebtItemModel) ToDomain() *billing.DebtItem {
	renters := make([]uuid.UUID, len(m.Renters))
	for i := range m.Renters {
		renters[i] = m.Renters[i].RenterID
	}
	return &billing.DebtItem{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		LeaseID:           m.LeaseID,
		UnitID:            m.UnitID,
		PropertyID:        m.PropertyID,
		RenterID:          m.RenterID,
		RenterIDs:         renters,
		Type:              m.Type,
		Description:       m.Description,
		AmountDue:         m.AmountDue,
		AmountPaid:        m.AmountPaid,
		DueDate:           billing.DateOf(m.DueDate),
		ChargeKey:         stringValue(m.ChargeKey),
	}
}

// DebtItemModelFromDomain creates a persistence model from a domain DebtItem
func DebtItemModelFromDomain(d *billing.DebtItem) *DebtItemModel {
	m := &DebtItemModel{
		LeaseID:     d.LeaseID,
		ChargeKey:   nullableString(d.ChargeKey),
		UnitID:      d.UnitID,
		PropertyID:  d.PropertyID,
		RenterID:    d.RenterID,
		Type:        d.Type,
		Description: d.Description,
		AmountDue:   d.AmountDue,
		AmountPaid:  d.AmountPaid,
		DueDate:     d.DueDate,
		Renters:     make([]DebtItemRenterModel, len(d.RenterIDs)),
	}
	m.FromDomainAggregateRoot(d.BaseAggregateRoot)
	for i, id := range d.RenterIDs {
		m.Renters[i] = DebtItemRenterModel{DebtItemID: d.ID, RenterID: id, Position: i}
	}
	return m
}

// PaymentModel is the persistence model for a Payment. Payments are written
// once and never updated.
type PaymentModel struct {
	BaseModel
	PaymentDate         time.Time                `gorm:"type:date;not null;index"`
	TotalAmountReceived decimal.Decimal          `gorm:"type:decimal(18,2);not null"`
	Methods             []PaymentMethodModel     `gorm:"foreignKey:PaymentID;references:ID"`
	Allocations         []PaymentAllocationModel `gorm:"foreignKey:PaymentID;references:ID"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// PaymentMethodModel is one tender line of a payment
type PaymentMethodModel struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	PaymentID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position  int             `gorm:"not null"`
	Method    string          `gorm:"type:varchar(50);not null"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Details   string          `gorm:"type:varchar(200)"`
}

// TableName returns the table name for GORM
func (PaymentMethodModel) TableName() string {
	return "payment_methods"
}

// PaymentAllocationModel is the part of a payment applied to one debt item
type PaymentAllocationModel struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"`
	PaymentID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Position      int             `gorm:"not null"`
	DebtItemID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	AmountApplied decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	RenterID      *uuid.UUID      `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the persistence model to a domain Payment. Children are
// expected preloaded in position order.
func (m *PaymentModel) ToDomain() *billing.Payment {
	p := &billing.Payment{
		BaseEntity:          m.BaseModel.ToDomain(),
		PaymentDate:         billing.DateOf(m.PaymentDate),
		TotalAmountReceived: m.TotalAmountReceived,
		PaymentMethods:      make([]billing.PaymentMethod, len(m.Methods)),
		Allocations:         make([]billing.PaymentAllocation, len(m.Allocations)),
	}
	for i, pm := range m.Methods {
		p.PaymentMethods[i] = billing.PaymentMethod{Method: pm.Method, Amount: pm.Amount, Details: pm.Details}
	}
	for i, a := range m.Allocations {
		p.Allocations[i] = billing.PaymentAllocation{DebtItemID: a.DebtItemID, AmountApplied: a.AmountApplied, RenterID: a.RenterID}
	}
	return p
}

// PaymentModelFromDomain creates a persistence model from a domain Payment
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{
		PaymentDate:         p.PaymentDate,
		TotalAmountReceived: p.TotalAmountReceived,
		Methods:             make([]PaymentMethodModel, len(p.PaymentMethods)),
		Allocations:         make([]PaymentAllocationModel, len(p.Allocations)),
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	for i, pm := range p.PaymentMethods {
		m.Methods[i] = PaymentMethodModel{PaymentID: p.ID, Position: i, Method: pm.Method, Amount: pm.Amount, Details: pm.Details}
	}
	for i, a := range p.Allocations {
		m.Allocations[i] = PaymentAllocationModel{PaymentID: p.ID, Position: i, DebtItemID: a.DebtItemID, AmountApplied: a.AmountApplied, RenterID: a.RenterID}
	}
	return m
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
