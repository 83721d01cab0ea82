// Package billing holds the rental billing domain: leases and the units they
// cover, metered utility readings, the debt ledger and payments allocated
// against it.
//
// Key Aggregates:
//   - Lease: monthly rent and utility unit prices for a unit, shared by one or more renters
//   - DebtItem: a single obligation (rent, utility, fee) with amount due and amount paid so far
//   - Payment: money received through one or more methods, allocated across debt items
//
// Value Objects:
//   - UtilityKind: metered utility (Power, Water)
//   - StoredCard: a renter's card on file, referenced by its last four digits
//
// Debt items are created by charge generation or ad-hoc fees and only ever
// mutated by payment allocation. Every mutation bumps the aggregate version so
// that concurrent allocations against the same debt are detected at commit.
package billing
