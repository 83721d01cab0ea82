package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentMethod is one way money was received for a payment
type PaymentMethod struct {
	Method  string          `json:"method"`
	Amount  decimal.Decimal `json:"amount"`
	Details string          `json:"details"`
}

// PaymentAllocation is the portion of a payment applied to one debt item
type PaymentAllocation struct {
	DebtItemID    uuid.UUID       `json:"debt_item_id"`
	AmountApplied decimal.Decimal `json:"amount_applied"`
	RenterID      *uuid.UUID      `json:"renter_id,omitempty"`
}

// Payment is money received and its allocation across debt items.
// It is immutable once stored.
type Payment struct {
	shared.BaseEntity
	PaymentDate         time.Time
	TotalAmountReceived decimal.Decimal
	PaymentMethods      []PaymentMethod
	Allocations         []PaymentAllocation
}

// NewPayment validates and creates a payment.
//
// A zero total is derived from the allocations. A non-zero total must equal the
// sum of the allocations, and when methods are given their amounts must add up
// to the same total.
func NewPayment(
	paymentDate time.Time,
	total decimal.Decimal,
	methods []PaymentMethod,
	allocations []PaymentAllocation,
	at time.Time,
) (*Payment, error) {
	if len(allocations) == 0 {
		return nil, shared.NewDomainError("INVALID_ALLOCATION", "Payment must have at least one allocation")
	}

	allocated := decimal.Zero
	for i, a := range allocations {
		if a.DebtItemID == uuid.Nil {
			return nil, shared.NewDomainError("INVALID_ALLOCATION", fmt.Sprintf("Allocation %d has no debt item ID", i))
		}
		if !a.AmountApplied.IsPositive() {
			return nil, shared.NewDomainError("INVALID_AMOUNT", fmt.Sprintf("Allocation to debt item %s must be positive", a.DebtItemID))
		}
		allocated = allocated.Add(a.AmountApplied)
	}

	if total.IsZero() {
		total = allocated
	} else if !total.Equal(allocated) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", fmt.Sprintf(
			"Total amount received %s does not match allocated amount %s",
			total.StringFixed(MoneyPlaces), allocated.StringFixed(MoneyPlaces)))
	}

	if len(methods) > 0 {
		received := decimal.Zero
		for _, m := range methods {
			if strings.TrimSpace(m.Method) == "" {
				return nil, shared.NewDomainError("INVALID_METHOD", "Payment method name cannot be empty")
			}
			if m.Amount.IsNegative() {
				return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment method amount cannot be negative")
			}
			received = received.Add(m.Amount)
		}
		if !received.Equal(total) {
			return nil, shared.NewDomainError("INVALID_AMOUNT", fmt.Sprintf(
				"Payment methods add up to %s but total is %s",
				received.StringFixed(MoneyPlaces), total.StringFixed(MoneyPlaces)))
		}
	}

	if paymentDate.IsZero() {
		paymentDate = at
	}

	return &Payment{
		BaseEntity:          shared.NewBaseEntity(at),
		PaymentDate:         paymentDate,
		TotalAmountReceived: total,
		PaymentMethods:      methods,
		Allocations:         allocations,
	}, nil
}

// DebtItemIDs returns the distinct debt items referenced, in allocation order
func (p *Payment) DebtItemIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(p.Allocations))
	ids := make([]uuid.UUID, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		if _, ok := seen[a.DebtItemID]; ok {
			continue
		}
		seen[a.DebtItemID] = struct{}{}
		ids = append(ids, a.DebtItemID)
	}
	return ids
}

// AppliedByDebt sums the applied amounts per debt item. Several allocations
// may target the same debt item within one payment.
func (p *Payment) AppliedByDebt() map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal, len(p.Allocations))
	for _, a := range p.Allocations {
		out[a.DebtItemID] = out[a.DebtItemID].Add(a.AmountApplied)
	}
	return out
}
