package billing

import (
	"fmt"
	"strings"
)

// UtilityKind identifies a metered utility series for a unit
type UtilityKind string

const (
	// UtilityPower is electricity, measured in kWh
	UtilityPower UtilityKind = "Power"
	// UtilityWater is water, measured in gallons
	UtilityWater UtilityKind = "Water"
)

// AllUtilityKinds returns the kinds billed on every charge run, in billing order
func AllUtilityKinds() []UtilityKind {
	return []UtilityKind{UtilityPower, UtilityWater}
}

// String returns the string representation of UtilityKind
func (k UtilityKind) String() string {
	return string(k)
}

// IsValid returns true if the utility kind is known
func (k UtilityKind) IsValid() bool {
	switch k {
	case UtilityPower, UtilityWater:
		return true
	}
	return false
}

// MeasureUnit returns the consumption unit shown on charge descriptions
func (k UtilityKind) MeasureUnit() string {
	switch k {
	case UtilityPower:
		return "kWh"
	case UtilityWater:
		return "gallons"
	}
	return ""
}

// DisplayName returns the name used on charge descriptions
func (k UtilityKind) DisplayName() string {
	switch k {
	case UtilityPower:
		return "Electricity"
	case UtilityWater:
		return "Water"
	}
	return string(k)
}

// ParseUtilityKind parses a kind case-insensitively ("power", "WATER")
func ParseUtilityKind(s string) (UtilityKind, error) {
	for _, k := range AllUtilityKinds() {
		if strings.EqualFold(string(k), strings.TrimSpace(s)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown utility kind %q", s)
}
