package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypeDebtCharged    = "DebtCharged"
	EventTypePaymentApplied = "PaymentApplied"
)

// DebtChargedEvent is raised when a new debt item is written to the ledger
type DebtChargedEvent struct {
	shared.BaseDomainEvent
	DebtItemID uuid.UUID       `json:"debt_item_id"`
	LeaseID    *uuid.UUID      `json:"lease_id,omitempty"`
	DebtType   string          `json:"debt_type"`
	AmountDue  decimal.Decimal `json:"amount_due"`
	DueDate    time.Time       `json:"due_date"`
}

// NewDebtChargedEvent creates a DebtChargedEvent
func NewDebtChargedEvent(d *DebtItem, at time.Time) *DebtChargedEvent {
	return &DebtChargedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDebtCharged, "DebtItem", d.ID, at),
		DebtItemID:      d.ID,
		LeaseID:         d.LeaseID,
		DebtType:        d.Type,
		AmountDue:       d.AmountDue,
		DueDate:         d.DueDate,
	}
}

// PaymentAppliedEvent is raised after a payment and its debt updates are committed
type PaymentAppliedEvent struct {
	shared.BaseDomainEvent
	PaymentID   uuid.UUID       `json:"payment_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DebtItemIDs []uuid.UUID     `json:"debt_item_ids"`
	Attempts    int             `json:"attempts"`
}

// NewPaymentAppliedEvent creates a PaymentAppliedEvent
func NewPaymentAppliedEvent(p *Payment, attempts int, at time.Time) *PaymentAppliedEvent {
	return &PaymentAppliedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentApplied, "Payment", p.ID, at),
		PaymentID:       p.ID,
		TotalAmount:     p.TotalAmountReceived,
		DebtItemIDs:     p.DebtItemIDs(),
		Attempts:        attempts,
	}
}
