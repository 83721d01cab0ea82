package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Query limits for the outstanding-debts read model
const (
	DefaultOutstandingLimit = 10
	MaxOutstandingLimit     = 100
)

// GeoBounds is a latitude/longitude bounding box
type GeoBounds struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}

// IsValid reports whether the box is well formed
func (b GeoBounds) IsValid() bool {
	return b.MinLat >= -90 && b.MaxLat <= 90 &&
		b.MinLng >= -180 && b.MaxLng <= 180 &&
		b.MinLat <= b.MaxLat && b.MinLng <= b.MaxLng
}

// Contains reports whether the point lies inside the box, edges included
func (b GeoBounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// OutstandingFilter selects rows of the outstanding-debts read model
type OutstandingFilter struct {
	Bounds *GeoBounds
	Limit  int
}

// OutstandingDebt is a debt item joined with its property's display name
type OutstandingDebt struct {
	DebtItem
	PropertyName string
}

// PropertyRepository defines the interface for property persistence
type PropertyRepository interface {
	// FindByID finds a property by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Property, error)

	// Save creates or updates a property
	Save(ctx context.Context, property *Property) error
}

// UnitRepository defines the interface for unit persistence
type UnitRepository interface {
	// FindByID finds a unit by its path identifier
	FindByID(ctx context.Context, id string) (*Unit, error)

	// FindByIDs loads several units in one round trip. Missing IDs are simply absent.
	FindByIDs(ctx context.Context, ids []string) ([]Unit, error)

	// Save creates or updates a unit
	Save(ctx context.Context, unit *Unit) error
}

// RenterRepository defines the interface for renter persistence
type RenterRepository interface {
	// FindByID finds a renter by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Renter, error)

	// FindByIDs loads several renters in one round trip. Missing IDs are simply absent.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Renter, error)

	// ExistsByID checks whether a renter exists
	ExistsByID(ctx context.Context, id uuid.UUID) (bool, error)

	// Save creates or updates a renter
	Save(ctx context.Context, renter *Renter) error
}

// LeaseRepository defines the interface for lease persistence
type LeaseRepository interface {
	// FindByID finds a lease by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Lease, error)

	// FindActiveOn returns leases whose [start, end] range contains day
	FindActiveOn(ctx context.Context, day time.Time) ([]Lease, error)

	// FindActiveByUnit returns the lease active on day for a unit
	FindActiveByUnit(ctx context.Context, unitID string, day time.Time) (*Lease, error)

	// SaveWithUnit stores the lease and its unit's occupancy change in one transaction
	SaveWithUnit(ctx context.Context, lease *Lease, unit *Unit) error
}

// DebtItemRepository defines the interface for debt ledger persistence
type DebtItemRepository interface {
	// FindByID finds a debt item by ID
	FindByID(ctx context.Context, id uuid.UUID) (*DebtItem, error)

	// FindByIDs loads several debt items in one round trip. Missing IDs are simply absent.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]DebtItem, error)

	// FindOutstanding returns debts with AmountDue > AmountPaid ordered by due date ascending
	FindOutstanding(ctx context.Context, filter OutstandingFilter) ([]OutstandingDebt, error)

	// FindByRenter returns debts a renter is responsible for, ordered by due date
	FindByRenter(ctx context.Context, renterID uuid.UUID, onlyOutstanding bool) ([]DebtItem, error)

	// Create stores a new debt item
	Create(ctx context.Context, debt *DebtItem) error

	// CreateCharges stores generated charges in one transaction, skipping any
	// whose (lease, charge key) already exists. Returns the debts actually created.
	CreateCharges(ctx context.Context, debts []*DebtItem) ([]*DebtItem, error)
}

// PaymentRepository defines the interface for payment persistence
type PaymentRepository interface {
	// FindByID finds a payment by ID with its methods and allocations
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// SaveWithDebts stores the payment and the debts it mutated in one transaction.
	// Each debt update is conditional on the version it was loaded with; if any
	// debt changed in the meantime nothing is written and ErrConcurrencyConflict is returned.
	SaveWithDebts(ctx context.Context, payment *Payment, debts []*DebtItem) error
}

// ReadingStore is the ordered sample store behind metered utilities
type ReadingStore interface {
	// Append stores readings
	Append(ctx context.Context, readings []MeterReading) error

	// SumReadings returns the plain sum of values for unit+kind with from <= timestamp < to
	SumReadings(ctx context.Context, unitID string, kind UtilityKind, from, to time.Time) (decimal.Decimal, error)

	// HourlyUsage returns hourly sums for unit+kind with from <= timestamp < to
	HourlyUsage(ctx context.Context, unitID string, kind UtilityKind, from, to time.Time) ([]UsagePoint, error)
}
