package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var (
	// ErrGatewayUnavailable is a transient failure; the charge may be retried with the same key
	ErrGatewayUnavailable = errors.New("gateway: temporarily unavailable")
	// ErrCardDeclined is a permanent failure for this card and amount
	ErrCardDeclined = errors.New("gateway: card declined")
	// ErrGatewayNotConfigured means the selected provider has no credentials
	ErrGatewayNotConfigured = errors.New("gateway: not configured")

	// ErrDuplicateCharge is returned when an idempotency key was already charged
	ErrDuplicateCharge = shared.NewDomainError("DUPLICATE_CHARGE", "A charge with this idempotency key was already processed")
)

// CardChargeRequest asks a gateway to charge a stored card
type CardChargeRequest struct {
	// IdempotencyKey identifies the charge attempt. The gateway must not charge
	// twice for the same key.
	IdempotencyKey string
	RenterID       uuid.UUID
	Card           StoredCard
	Amount         decimal.Decimal
	Currency       string
	Description    string
}

// CardChargeResult is the gateway's acknowledgement of a charge
type CardChargeResult struct {
	Provider  string
	Reference string
	ChargedAt time.Time
}

// CardGateway is the port to the external card network. Implementations live
// in the infrastructure layer.
type CardGateway interface {
	// Name identifies the provider
	Name() string

	// Charge charges the card. Transient failures return ErrGatewayUnavailable.
	Charge(ctx context.Context, req CardChargeRequest) (*CardChargeResult, error)
}
