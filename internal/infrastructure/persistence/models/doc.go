// Package models contains GORM persistence models for the billing tables.
// The domain types stay free of ORM concerns; each model converts to and from
// its domain counterpart with ToDomain and FromDomain.
//
// Structure:
//   - base.go: shared id/timestamp/version columns
//   - property.go: properties, units and renters
//   - lease.go: leases and their renter links
//   - ledger.go: debt items, payments, payment methods and allocations
//   - meter_reading.go: raw utility samples
package models
