package billing

import (
	"time"

	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MeterReading is a single timestamped consumption sample for a unit
type MeterReading struct {
	UnitID    string
	Kind      UtilityKind
	Timestamp time.Time
	Value     decimal.Decimal
	Tag       string
}

// NewMeterReading validates a reading
func NewMeterReading(unitID string, kind UtilityKind, ts time.Time, value decimal.Decimal, tag string) (MeterReading, error) {
	if unitID == "" {
		return MeterReading{}, shared.NewDomainError("INVALID_UNIT", "Unit ID cannot be empty")
	}
	if !kind.IsValid() {
		return MeterReading{}, shared.NewDomainError("INVALID_UTILITY_KIND", "Unknown utility kind "+kind.String())
	}
	if ts.IsZero() {
		return MeterReading{}, shared.NewDomainError("INVALID_TIMESTAMP", "Reading timestamp is required")
	}
	if value.IsNegative() {
		return MeterReading{}, shared.NewDomainError("INVALID_USAGE", "Reading value cannot be negative")
	}
	return MeterReading{
		UnitID:    unitID,
		Kind:      kind,
		Timestamp: ts.UTC(),
		Value:     value,
		Tag:       tag,
	}, nil
}

// UsagePoint is an aggregated bucket of readings
type UsagePoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Value     decimal.Decimal `json:"value"`
}
