package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RetryConfig controls the idempotent wrapper
type RetryConfig struct {
	MaxAttempts    int
	RetryDelay     time.Duration // multiplied by the attempt number
	IdempotencyTTL time.Duration
}

// DefaultRetryConfig returns default configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		RetryDelay:     200 * time.Millisecond,
		IdempotencyTTL: 24 * time.Hour,
	}
}

// IdempotentGateway claims the idempotency key before charging and retries
// transient failures. A key that was already claimed is refused with
// billing.ErrDuplicateCharge. The key is released when the charge fails, so
// the renter can try again.
type IdempotentGateway struct {
	inner    billing.CardGateway
	store    shared.IdempotencyStore
	config   RetryConfig
	logger   *zap.Logger
	recorder ChargeRecorder
}

// ChargeRecorder receives the outcome of every charge attempt
type ChargeRecorder interface {
	RecordCardCharge(ctx context.Context, provider, outcome string)
}

// Charge outcomes reported to the recorder
const (
	OutcomeCharged     = "charged"
	OutcomeDuplicate   = "duplicate"
	OutcomeDeclined    = "declined"
	OutcomeUnavailable = "unavailable"
	OutcomeFailed      = "failed"
)

// NewIdempotentGateway wraps a gateway
func NewIdempotentGateway(inner billing.CardGateway, store shared.IdempotencyStore, config RetryConfig, logger *zap.Logger) *IdempotentGateway {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = 24 * time.Hour
	}
	return &IdempotentGateway{inner: inner, store: store, config: config, logger: logger}
}

// SetRecorder sets the outcome recorder
func (g *IdempotentGateway) SetRecorder(r ChargeRecorder) {
	g.recorder = r
}

// Name identifies the wrapped provider
func (g *IdempotentGateway) Name() string {
	return g.inner.Name()
}

// Charge claims the key and charges with retries
func (g *IdempotentGateway) Charge(ctx context.Context, req billing.CardChargeRequest) (*billing.CardChargeResult, error) {
	if req.IdempotencyKey == "" {
		return nil, shared.NewInvalidInputError("Idempotency key is required")
	}

	claimed, err := g.store.MarkProcessed(ctx, req.IdempotencyKey, g.config.IdempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency store: %v: %w", err, billing.ErrGatewayUnavailable)
	}
	if !claimed {
		g.logger.Warn("Refusing duplicate card charge", zap.String("renter_id", req.RenterID.String()))
		g.record(ctx, OutcomeDuplicate)
		return nil, billing.ErrDuplicateCharge
	}

	result, err := g.chargeWithRetry(ctx, req)
	g.record(ctx, outcomeOf(err))
	if err != nil {
		if relErr := g.store.Release(context.WithoutCancel(ctx), req.IdempotencyKey); relErr != nil {
			g.logger.Error("Failed to release idempotency key", zap.Error(relErr))
		}
		return nil, err
	}
	return result, nil
}

func (g *IdempotentGateway) record(ctx context.Context, outcome string) {
	if g.recorder != nil {
		g.recorder.RecordCardCharge(ctx, g.inner.Name(), outcome)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeCharged
	case errors.Is(err, billing.ErrCardDeclined):
		return OutcomeDeclined
	case errors.Is(err, billing.ErrGatewayUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeFailed
	}
}

func (g *IdempotentGateway) chargeWithRetry(ctx context.Context, req billing.CardChargeRequest) (*billing.CardChargeResult, error) {
	var lastErr error
	for attempt := 1; attempt <= g.config.MaxAttempts; attempt++ {
		result, err := g.inner.Charge(ctx, req)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, billing.ErrGatewayUnavailable) {
			return nil, err
		}
		lastErr = err

		g.logger.Warn("Card gateway unavailable",
			zap.String("provider", g.inner.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == g.config.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.config.RetryDelay * time.Duration(attempt)):
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", g.config.MaxAttempts, lastErr)
}

var _ billing.CardGateway = (*IdempotentGateway)(nil)
