package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Default utility prices applied when a lease does not set its own
var (
	DefaultPowerUnitPrice = decimal.RequireFromString("0.12")  // per kWh
	DefaultWaterUnitPrice = decimal.RequireFromString("0.005") // per gallon
)

// Lease binds renters to a unit for an inclusive date range
type Lease struct {
	shared.BaseAggregateRoot
	UnitID          string
	RenterIDs       []uuid.UUID
	LeaseAmount     decimal.Decimal
	StartDate       time.Time
	EndDate         time.Time
	LegalDocumentID string
	PowerUnitPrice  decimal.Decimal
	WaterUnitPrice  decimal.Decimal
}

// NewLease creates a lease; zero utility prices fall back to the defaults
func NewLease(
	unitID string,
	renterIDs []uuid.UUID,
	amount decimal.Decimal,
	start, end time.Time,
	powerPrice, waterPrice decimal.Decimal,
	at time.Time,
) (*Lease, error) {
	if unitID == "" {
		return nil, shared.NewDomainError("INVALID_UNIT", "Unit ID cannot be empty")
	}
	renterIDs = dedupeIDs(renterIDs)
	if len(renterIDs) == 0 {
		return nil, shared.NewDomainError("INVALID_RENTERS", "Lease requires at least one renter")
	}
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Lease amount must be positive")
	}
	start, end = DateOf(start), DateOf(end)
	if end.Before(start) {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Lease end cannot be before lease start")
	}
	if powerPrice.IsNegative() || waterPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Utility prices cannot be negative")
	}
	if powerPrice.IsZero() {
		powerPrice = DefaultPowerUnitPrice
	}
	if waterPrice.IsZero() {
		waterPrice = DefaultWaterUnitPrice
	}

	return &Lease{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(at),
		UnitID:            unitID,
		RenterIDs:         renterIDs,
		LeaseAmount:       amount,
		StartDate:         start,
		EndDate:           end,
		PowerUnitPrice:    powerPrice,
		WaterUnitPrice:    waterPrice,
	}, nil
}

// IsActiveOn reports whether day falls within [StartDate, EndDate]
func (l *Lease) IsActiveOn(day time.Time) bool {
	d := DateOf(day)
	return !d.Before(DateOf(l.StartDate)) && !d.After(DateOf(l.EndDate))
}

// UnitPrice returns the lease's price for a utility kind
func (l *Lease) UnitPrice(kind UtilityKind) decimal.Decimal {
	switch kind {
	case UtilityPower:
		return l.PowerUnitPrice
	case UtilityWater:
		return l.WaterUnitPrice
	}
	return decimal.Zero
}

// PrimaryRenterID returns the first renter on the lease
func (l *Lease) PrimaryRenterID() uuid.UUID {
	if len(l.RenterIDs) == 0 {
		return uuid.Nil
	}
	return l.RenterIDs[0]
}

// Terminate ends the lease on the given day
func (l *Lease) Terminate(day time.Time) error {
	d := DateOf(day)
	if d.Before(DateOf(l.StartDate)) {
		return shared.NewDomainError("INVALID_STATE", "Cannot terminate a lease before it starts")
	}
	l.EndDate = d
	l.Touch(day)
	l.IncrementVersion()
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
