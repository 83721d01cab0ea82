package gateway

import (
	"fmt"

	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// New builds the configured provider behind the idempotent retry wrapper
func New(cfg config.GatewayConfig, store shared.IdempotencyStore, logger *zap.Logger) (*IdempotentGateway, error) {
	var inner billing.CardGateway
	switch cfg.Provider {
	case ProviderLedger, "":
		inner = NewLedgerGateway(logger)
	case ProviderRazorpay:
		rp, err := NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpaySecret, logger)
		if err != nil {
			return nil, err
		}
		inner = rp
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}

	return NewIdempotentGateway(inner, store, RetryConfig{
		MaxAttempts:    cfg.MaxAttempts,
		RetryDelay:     cfg.RetryDelay,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}, logger), nil
}
