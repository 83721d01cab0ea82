package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/shared"
)

// Property is a building that contains rentable units
type Property struct {
	shared.BaseEntity
	Name       string
	Address    string
	TotalUnits int
	Latitude   float64
	Longitude  float64
}

// Unit is a rentable unit inside a property. Its ID is the path
// "<propertyID>/<unitNumber>", so the unit number can always be read back
// from the identifier alone.
type Unit struct {
	ID         string
	PropertyID uuid.UUID
	UnitNumber string
	VacantFrom *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewUnitID builds the identifier of a unit from its property and number
func NewUnitID(propertyID uuid.UUID, unitNumber string) string {
	return fmt.Sprintf("%s/%s", propertyID, unitNumber)
}

// UnitNumberFromID returns the trailing segment of a unit identifier
func UnitNumberFromID(unitID string) string {
	if unitID == "" {
		return ""
	}
	if i := strings.LastIndex(unitID, "/"); i >= 0 {
		return unitID[i+1:]
	}
	return unitID
}

// NewUnit creates a unit that is vacant from the given date
func NewUnit(propertyID uuid.UUID, unitNumber string, vacantFrom time.Time) (*Unit, error) {
	if propertyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PROPERTY", "Property ID cannot be empty")
	}
	unitNumber = strings.TrimSpace(unitNumber)
	if unitNumber == "" || strings.Contains(unitNumber, "/") {
		return nil, shared.NewDomainError("INVALID_UNIT_NUMBER", "Unit number must be non-empty and must not contain '/'")
	}
	vf := DateOf(vacantFrom)
	return &Unit{
		ID:         NewUnitID(propertyID, unitNumber),
		PropertyID: propertyID,
		UnitNumber: unitNumber,
		VacantFrom: &vf,
		CreatedAt:  vacantFrom,
		UpdatedAt:  vacantFrom,
	}, nil
}

// Occupy clears the vacancy date
func (u *Unit) Occupy(at time.Time) {
	u.VacantFrom = nil
	u.UpdatedAt = at
}

// Vacate marks the unit vacant from the given date
func (u *Unit) Vacate(from time.Time) {
	d := DateOf(from)
	u.VacantFrom = &d
	u.UpdatedAt = from
}

// IsVacant reports whether the unit has a vacancy date
func (u *Unit) IsVacant() bool {
	return u.VacantFrom != nil
}
