package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	csvimport "github.com/rentals/backend/internal/infrastructure/import"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of calendar dates
const DateLayout = "2006-01-02"

// FormatMoney renders an amount with two decimal places
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(billing.MoneyPlaces)
}

// FormatDate renders a calendar date
func FormatDate(t time.Time) string {
	return billing.DateOf(t).Format(DateLayout)
}

// ChargeRunResult reports what a charge run created
type ChargeRunResult struct {
	AsOf                  string `json:"as_of"`
	LeasesProcessed       int    `json:"leases_processed"`
	LeasesSkipped         int    `json:"leases_skipped"`
	RentChargesCreated    int    `json:"rent_charges_created"`
	UtilityChargesCreated int    `json:"utility_charges_created"`
}

// RenterSummary is the renter part of an enriched debt
type RenterSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

// DebtResponse represents a debt item in API responses
type DebtResponse struct {
	ID                uuid.UUID       `json:"id"`
	LeaseID           *uuid.UUID      `json:"lease_id,omitempty"`
	UnitID            string          `json:"unit_id,omitempty"`
	UnitNumber        string          `json:"unit_number,omitempty"`
	PropertyID        *uuid.UUID      `json:"property_id,omitempty"`
	PropertyName      string          `json:"property_name,omitempty"`
	RenterID          uuid.UUID       `json:"renter_id"`
	RenterIDs         []uuid.UUID     `json:"renter_ids"`
	Renters           []RenterSummary `json:"renters,omitempty"`
	Type              string          `json:"type"`
	Description       string          `json:"description"`
	AmountDue         string          `json:"amount_due"`
	AmountPaid        string          `json:"amount_paid"`
	AmountOutstanding string          `json:"amount_outstanding"`
	DueDate           string          `json:"due_date"`
	ChargeKey         string          `json:"charge_key,omitempty"`
	Version           int             `json:"version"`
}

// ToDebtResponse converts a debt item to its response form
func ToDebtResponse(d *billing.DebtItem) DebtResponse {
	return DebtResponse{
		ID:                d.ID,
		LeaseID:           d.LeaseID,
		UnitID:            d.UnitID,
		UnitNumber:        billing.UnitNumberFromID(d.UnitID),
		PropertyID:        d.PropertyID,
		RenterID:          d.RenterID,
		RenterIDs:         d.RenterIDs,
		Type:              d.Type,
		Description:       d.Description,
		AmountDue:         FormatMoney(d.AmountDue),
		AmountPaid:        FormatMoney(d.AmountPaid),
		AmountOutstanding: FormatMoney(d.AmountOutstanding()),
		DueDate:           FormatDate(d.DueDate),
		ChargeKey:         d.ChargeKey,
		Version:           d.Version,
	}
}

// ToDebtResponses converts a list of debt items
func ToDebtResponses(debts []billing.DebtItem) []DebtResponse {
	out := make([]DebtResponse, len(debts))
	for i := range debts {
		out[i] = ToDebtResponse(&debts[i])
	}
	return out
}

// OutstandingQuery selects rows of the outstanding-debts read model
type OutstandingQuery struct {
	Bounds *billing.GeoBounds
	Limit  int
}

// FeeRequest carries the caller-supplied fields of an ad-hoc fee
type FeeRequest struct {
	LeaseID     *uuid.UUID
	UnitID      string
	PropertyID  *uuid.UUID
	RenterIDs   []uuid.UUID
	Type        string
	Description string
	AmountDue   decimal.Decimal
	DueDate     time.Time
}

// ApplyPaymentRequest carries a payment and its allocations. A zero total is
// derived from the allocations.
type ApplyPaymentRequest struct {
	PaymentDate time.Time
	TotalAmount decimal.Decimal
	Methods     []billing.PaymentMethod
	Allocations []billing.PaymentAllocation
}

// PaymentMethodResponse is one method of a stored payment
type PaymentMethodResponse struct {
	Method  string `json:"method"`
	Amount  string `json:"amount"`
	Details string `json:"details"`
}

// AllocationResponse is one allocation of a stored payment
type AllocationResponse struct {
	DebtItemID    uuid.UUID  `json:"debt_item_id"`
	AmountApplied string     `json:"amount_applied"`
	RenterID      *uuid.UUID `json:"renter_id,omitempty"`
}

// PaymentResponse represents a stored payment
type PaymentResponse struct {
	ID                  uuid.UUID               `json:"id"`
	PaymentDate         string                  `json:"payment_date"`
	TotalAmountReceived string                  `json:"total_amount_received"`
	Methods             []PaymentMethodResponse `json:"methods"`
	Allocations         []AllocationResponse    `json:"allocations"`
	CreatedAt           time.Time               `json:"created_at"`
}

// ToPaymentResponse converts a payment to its response form
func ToPaymentResponse(p *billing.Payment) PaymentResponse {
	methods := make([]PaymentMethodResponse, len(p.PaymentMethods))
	for i, m := range p.PaymentMethods {
		methods[i] = PaymentMethodResponse{Method: m.Method, Amount: FormatMoney(m.Amount), Details: m.Details}
	}
	allocs := make([]AllocationResponse, len(p.Allocations))
	for i, a := range p.Allocations {
		allocs[i] = AllocationResponse{DebtItemID: a.DebtItemID, AmountApplied: FormatMoney(a.AmountApplied), RenterID: a.RenterID}
	}
	return PaymentResponse{
		ID:                  p.ID,
		PaymentDate:         FormatDate(p.PaymentDate),
		TotalAmountReceived: FormatMoney(p.TotalAmountReceived),
		Methods:             methods,
		Allocations:         allocs,
		CreatedAt:           p.CreatedAt,
	}
}

// ChargeCardRequest asks to charge a renter's stored card for a set of debts
type ChargeCardRequest struct {
	RenterID    uuid.UUID
	DebtItemIDs []uuid.UUID
	CardLast4   string
	MethodLabel string
}

// ChargeCardResult reports a completed card charge
type ChargeCardResult struct {
	PaymentID    uuid.UUID   `json:"payment_id"`
	TotalCharged string      `json:"total_charged"`
	DebtItemIDs  []uuid.UUID `json:"debt_item_ids"`
	Provider     string      `json:"provider"`
	Reference    string      `json:"reference"`
}

// ReadingEntry is one uploaded sample
type ReadingEntry struct {
	Timestamp time.Time       `json:"timestamp" binding:"required"`
	Usage     decimal.Decimal `json:"usage"`
	Tag       string          `json:"tag" binding:"max=100"`
}

// UploadReadingsRequest uploads samples of one kind for one unit
type UploadReadingsRequest struct {
	UnitID  string         `json:"unit_id" binding:"required"`
	Entries []ReadingEntry `json:"entries" binding:"required,min=1,dive"`
}

// UploadResult reports an ingestion. Rows with errors are skipped.
type UploadResult struct {
	RecordsProcessed int                  `json:"records_processed"`
	Errors           []csvimport.RowError `json:"errors"`
	TotalErrors      int                  `json:"total_errors"`
	Truncated        bool                 `json:"truncated,omitempty"`
	ArchiveKey       string               `json:"archive_key,omitempty"`
}

// UsagePointResponse is one hourly bucket
type UsagePointResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Value     string    `json:"value"`
}

// UsageSeriesResponse is the hourly usage of a unit over a date range
type UsageSeriesResponse struct {
	UnitID     string               `json:"unit_id"`
	UnitNumber string               `json:"unit_number"`
	From       string               `json:"from"`
	To         string               `json:"to"`
	PowerUsage []UsagePointResponse `json:"power_usage"`
	WaterUsage []UsagePointResponse `json:"water_usage"`
}

func toUsagePoints(points []billing.UsagePoint) []UsagePointResponse {
	out := make([]UsagePointResponse, len(points))
	for i, p := range points {
		out[i] = UsagePointResponse{Timestamp: p.Timestamp, Value: p.Value.String()}
	}
	return out
}

// CreateLeaseRequest carries the terms of a new lease
type CreateLeaseRequest struct {
	UnitID          string
	RenterIDs       []uuid.UUID
	LeaseAmount     decimal.Decimal
	StartDate       time.Time
	EndDate         time.Time
	LegalDocumentID string
	PowerUnitPrice  decimal.Decimal
	WaterUnitPrice  decimal.Decimal
}

// LeaseResponse represents a lease in API responses
type LeaseResponse struct {
	ID              uuid.UUID   `json:"id"`
	UnitID          string      `json:"unit_id"`
	UnitNumber      string      `json:"unit_number"`
	RenterIDs       []uuid.UUID `json:"renter_ids"`
	LeaseAmount     string      `json:"lease_amount"`
	StartDate       string      `json:"start_date"`
	EndDate         string      `json:"end_date"`
	LegalDocumentID string      `json:"legal_document_id,omitempty"`
	PowerUnitPrice  string      `json:"power_unit_price"`
	WaterUnitPrice  string      `json:"water_unit_price"`
	Version         int         `json:"version"`
}

// ToLeaseResponse converts a lease to its response form
func ToLeaseResponse(l *billing.Lease) LeaseResponse {
	return LeaseResponse{
		ID:              l.ID,
		UnitID:          l.UnitID,
		UnitNumber:      billing.UnitNumberFromID(l.UnitID),
		RenterIDs:       l.RenterIDs,
		LeaseAmount:     FormatMoney(l.LeaseAmount),
		StartDate:       FormatDate(l.StartDate),
		EndDate:         FormatDate(l.EndDate),
		LegalDocumentID: l.LegalDocumentID,
		PowerUnitPrice:  l.PowerUnitPrice.String(),
		WaterUnitPrice:  l.WaterUnitPrice.String(),
		Version:         l.Version,
	}
}
