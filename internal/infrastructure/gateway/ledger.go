// Package gateway holds the card gateway adapters and the idempotent retry
// wrapper placed in front of them.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// ProviderLedger records charges without contacting a card network. It is
// meant for development and for properties that settle cards offline.
const ProviderLedger = "ledger"

// LedgerGateway acknowledges every charge with a generated reference
type LedgerGateway struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewLedgerGateway creates a new LedgerGateway
func NewLedgerGateway(logger *zap.Logger) *LedgerGateway {
	return &LedgerGateway{logger: logger, now: time.Now}
}

// Name identifies the provider
func (g *LedgerGateway) Name() string {
	return ProviderLedger
}

// Charge records the charge and returns a local reference
func (g *LedgerGateway) Charge(ctx context.Context, req billing.CardChargeRequest) (*billing.CardChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("charge amount must be positive: %w", billing.ErrCardDeclined)
	}
	ref := "ledger_" + uuid.NewString()
	g.logger.Info("Ledger charge recorded",
		zap.String("reference", ref),
		zap.String("card", req.Card.Descriptor()),
		zap.String("amount", req.Amount.StringFixed(billing.MoneyPlaces)),
		zap.String("currency", req.Currency))
	return &billing.CardChargeResult{Provider: ProviderLedger, Reference: ref, ChargedAt: g.now().UTC()}, nil
}

var _ billing.CardGateway = (*LedgerGateway)(nil)
