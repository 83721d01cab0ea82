package billing

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Well-known debt types. The type is a free-form category; any other
// non-empty string is accepted for ad-hoc fees.
const (
	DebtTypeRent    = "Rent"
	DebtTypeUtility = "Utility"
	DebtTypeFee     = "Fee"
)

// MoneyPlaces is the number of decimal places kept on charged amounts
const MoneyPlaces = 2

// OverpaymentPolicy decides what happens when allocations exceed the amount due
type OverpaymentPolicy string

const (
	// OverpaymentAllow keeps the excess as credit: outstanding goes negative
	OverpaymentAllow OverpaymentPolicy = "allow"
	// OverpaymentReject refuses any allocation that would exceed the amount due
	OverpaymentReject OverpaymentPolicy = "reject"
)

// IsValid returns true if the policy is known
func (p OverpaymentPolicy) IsValid() bool {
	return p == OverpaymentAllow || p == OverpaymentReject
}

// DebtItem is a single billable obligation in the ledger
type DebtItem struct {
	shared.BaseAggregateRoot
	LeaseID     *uuid.UUID
	UnitID      string
	PropertyID  *uuid.UUID
	RenterID    uuid.UUID
	RenterIDs   []uuid.UUID
	Type        string
	Description string
	AmountDue   decimal.Decimal
	AmountPaid  decimal.Decimal
	DueDate     time.Time
	// ChargeKey is the natural key of a generated charge within its lease,
	// e.g. "RENT:2026-11" or "UTILITY:POWER:2026-10". Empty for ad-hoc fees.
	ChargeKey string
}

// RentChargeKey returns the natural key of the rent charge for a due period
func RentChargeKey(duePeriod time.Time) string {
	return "RENT:" + PeriodKey(duePeriod)
}

// UtilityChargeKey returns the natural key of a utility charge for a usage period
func UtilityChargeKey(kind UtilityKind, usagePeriod time.Time) string {
	return fmt.Sprintf("UTILITY:%s:%s", strings.ToUpper(kind.String()), PeriodKey(usagePeriod))
}

// NewRentCharge creates next month's rent for a lease, due on the first of next month
func NewRentCharge(lease *Lease, unit *Unit, asOf time.Time) *DebtItem {
	due := FirstOfNextMonth(asOf)
	debt := newLeaseCharge(lease, unit, asOf)
	debt.Type = DebtTypeRent
	debt.Description = "Rent for " + MonthLabel(due)
	debt.AmountDue = lease.LeaseAmount
	debt.DueDate = due
	debt.ChargeKey = RentChargeKey(due)
	return debt
}

// NewUtilityCharge creates the current month's charge for one utility kind.
// The amount is usage x unit price, rounded half-to-even to cents once after
// multiplication. It returns nil when usage is not positive.
func NewUtilityCharge(lease *Lease, unit *Unit, kind UtilityKind, usage decimal.Decimal, asOf time.Time) *DebtItem {
	if !usage.IsPositive() {
		return nil
	}
	period := FirstOfMonth(asOf)
	debt := newLeaseCharge(lease, unit, asOf)
	debt.Type = DebtTypeUtility
	debt.Description = fmt.Sprintf("%s - %s (%s %s)",
		kind.DisplayName(), MonthLabel(period), usage.StringFixed(1), kind.MeasureUnit())
	debt.AmountDue = usage.Mul(lease.UnitPrice(kind)).RoundBank(MoneyPlaces)
	debt.DueDate = FirstOfNextMonth(asOf)
	debt.ChargeKey = UtilityChargeKey(kind, period)
	return debt
}

func newLeaseCharge(lease *Lease, unit *Unit, at time.Time) *DebtItem {
	leaseID := lease.ID
	propertyID := unit.PropertyID
	return &DebtItem{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(at),
		LeaseID:           &leaseID,
		UnitID:            unit.ID,
		PropertyID:        &propertyID,
		RenterID:          lease.PrimaryRenterID(),
		RenterIDs:         slices.Clone(lease.RenterIDs),
		AmountPaid:        decimal.Zero,
	}
}

// FeeDetails carries the caller-supplied part of an ad-hoc fee
type FeeDetails struct {
	LeaseID     *uuid.UUID
	UnitID      string
	PropertyID  *uuid.UUID
	RenterIDs   []uuid.UUID
	Type        string
	Description string
	AmountDue   decimal.Decimal
	DueDate     time.Time
}

// NewFee creates an ad-hoc debt for a renter. The amount paid always starts
// at zero and the renter is always among the responsible renters.
func NewFee(renterID uuid.UUID, d FeeDetails, at time.Time) (*DebtItem, error) {
	if renterID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_RENTER", "Renter ID cannot be empty")
	}
	if !d.AmountDue.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Fee amount must be positive")
	}
	feeType := strings.TrimSpace(d.Type)
	if feeType == "" {
		feeType = DebtTypeFee
	}
	due := d.DueDate
	if due.IsZero() {
		due = at
	}
	renters := dedupeIDs(append([]uuid.UUID{renterID}, d.RenterIDs...))

	return &DebtItem{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(at),
		LeaseID:           d.LeaseID,
		UnitID:            d.UnitID,
		PropertyID:        d.PropertyID,
		RenterID:          renterID,
		RenterIDs:         renters,
		Type:              feeType,
		Description:       d.Description,
		AmountDue:         d.AmountDue.RoundBank(MoneyPlaces),
		AmountPaid:        decimal.Zero,
		DueDate:           DateOf(due),
	}, nil
}

// AmountOutstanding returns AmountDue - AmountPaid. It is negative when the
// debt carries credit from an overpayment.
func (d *DebtItem) AmountOutstanding() decimal.Decimal {
	return d.AmountDue.Sub(d.AmountPaid)
}

// IsOutstanding reports whether anything remains to be paid
func (d *DebtItem) IsOutstanding() bool {
	return d.AmountOutstanding().IsPositive()
}

// IsOwnedBy reports whether the renter is among the responsible renters
func (d *DebtItem) IsOwnedBy(renterID uuid.UUID) bool {
	return slices.Contains(d.RenterIDs, renterID)
}

// ApplyAllocation adds an applied amount to AmountPaid and bumps the version.
// Amounts are never subtracted: AmountPaid only grows.
func (d *DebtItem) ApplyAllocation(amount decimal.Decimal, policy OverpaymentPolicy, at time.Time) error {
	if !amount.IsPositive() {
		return shared.NewDomainError("INVALID_AMOUNT", fmt.Sprintf("Amount applied to debt item %s must be positive", d.ID))
	}
	newPaid := d.AmountPaid.Add(amount)
	if policy == OverpaymentReject && newPaid.GreaterThan(d.AmountDue) {
		return shared.NewDomainError("OVERPAYMENT", fmt.Sprintf(
			"Applying %s to debt item %s exceeds its outstanding balance %s",
			amount.StringFixed(MoneyPlaces), d.ID, d.AmountOutstanding().StringFixed(MoneyPlaces)))
	}
	d.AmountPaid = newPaid
	d.Touch(at)
	d.IncrementVersion()
	return nil
}
