package billing

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// PaymentAllocatorConfig contains configuration for PaymentAllocator
type PaymentAllocatorConfig struct {
	OverpaymentPolicy billing.OverpaymentPolicy
	MaxAttempts       int
	Backoff           time.Duration
}

// DefaultPaymentAllocatorConfig returns default configuration
func DefaultPaymentAllocatorConfig() PaymentAllocatorConfig {
	return PaymentAllocatorConfig{
		OverpaymentPolicy: billing.OverpaymentAllow,
		MaxAttempts:       3,
		Backoff:           50 * time.Millisecond,
	}
}

// PaymentAllocator validates a payment and applies its allocations to the
// referenced debts atomically
type PaymentAllocator struct {
	debtRepo    billing.DebtItemRepository
	paymentRepo billing.PaymentRepository
	eventBus    shared.EventPublisher
	clock       shared.Clock
	logger      *zap.Logger
	config      PaymentAllocatorConfig
}

// NewPaymentAllocator creates a new PaymentAllocator
func NewPaymentAllocator(
	debtRepo billing.DebtItemRepository,
	paymentRepo billing.PaymentRepository,
	clock shared.Clock,
	logger *zap.Logger,
	config PaymentAllocatorConfig,
) *PaymentAllocator {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if !config.OverpaymentPolicy.IsValid() {
		config.OverpaymentPolicy = billing.OverpaymentAllow
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.Backoff < 0 {
		config.Backoff = 0
	}
	return &PaymentAllocator{
		debtRepo:    debtRepo,
		paymentRepo: paymentRepo,
		clock:       clock,
		logger:      logger,
		config:      config,
	}
}

// SetEventPublisher sets the event publisher for cross-context communication
func (a *PaymentAllocator) SetEventPublisher(publisher shared.EventPublisher) {
	a.eventBus = publisher
}

// ApplyPayment stores the payment and adds every allocation to its debt's
// paid amount in one transaction. A missing debt fails the whole payment. When
// another writer changes one of the debts first, the read-validate-write cycle
// is repeated up to MaxAttempts times.
func (a *PaymentAllocator) ApplyPayment(ctx context.Context, req ApplyPaymentRequest) (*PaymentResponse, error) {
	return a.apply(ctx, req, a.applyWithRetry)
}

// ApplyPaymentAt records a payment against debts exactly as the caller read
// them. There is a single attempt: if any of the debts changed since it was
// read, the commit fails with a conflict and nothing is written.
func (a *PaymentAllocator) ApplyPaymentAt(ctx context.Context, req ApplyPaymentRequest, debts []billing.DebtItem) (*PaymentResponse, error) {
	return a.apply(ctx, req, func(ctx context.Context, payment *billing.Payment) (int, error) {
		byID := make(map[uuid.UUID]*billing.DebtItem, len(debts))
		for i := range debts {
			d := debts[i]
			byID[d.ID] = &d
		}
		if err := missingDebtsError(payment.DebtItemIDs(), byID); err != nil {
			return 1, err
		}
		return 1, a.commit(ctx, payment, byID)
	})
}

func (a *PaymentAllocator) apply(
	ctx context.Context,
	req ApplyPaymentRequest,
	save func(context.Context, *billing.Payment) (int, error),
) (*PaymentResponse, error) {
	payment, err := billing.NewPayment(req.PaymentDate, req.TotalAmount, req.Methods, req.Allocations, a.clock.Now())
	if err != nil {
		return nil, err
	}
	payment.PaymentDate = billing.DateOf(payment.PaymentDate)

	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "apply",
		telemetry.WithAttribute("payment_id", payment.ID.String()),
		telemetry.WithAttribute("allocations", len(payment.Allocations)))
	defer span.End()

	attempts, err := save(ctx, payment)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttribute(span, "attempts", attempts)
	telemetry.SetOK(span)

	if a.eventBus != nil {
		if err := a.eventBus.Publish(ctx, billing.NewPaymentAppliedEvent(payment, attempts, a.clock.Now())); err != nil {
			a.logger.Error("Failed to publish payment event", zap.Error(err), zap.String("payment_id", payment.ID.String()))
		}
	}

	a.logger.Info("Payment applied",
		zap.String("payment_id", payment.ID.String()),
		zap.String("total", FormatMoney(payment.TotalAmountReceived)),
		zap.Int("debts", len(payment.DebtItemIDs())),
		zap.Int("attempt", attempts))

	resp := ToPaymentResponse(payment)
	return &resp, nil
}

func (a *PaymentAllocator) applyWithRetry(ctx context.Context, payment *billing.Payment) (int, error) {
	for attempt := 1; ; attempt++ {
		err := a.applyOnce(ctx, payment)
		if err == nil {
			return attempt, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= a.config.MaxAttempts {
			return attempt, err
		}

		a.logger.Warn("Payment lost a concurrent update, retrying",
			zap.String("payment_id", payment.ID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if err := sleepCtx(ctx, a.config.Backoff*time.Duration(attempt)); err != nil {
			return attempt, err
		}
	}
}

func (a *PaymentAllocator) applyOnce(ctx context.Context, payment *billing.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids := payment.DebtItemIDs()
	debts, err := a.debtRepo.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load debt items: %w", err)
	}
	byID := make(map[uuid.UUID]*billing.DebtItem, len(debts))
	for i := range debts {
		byID[debts[i].ID] = &debts[i]
	}
	if err := missingDebtsError(ids, byID); err != nil {
		return err
	}
	return a.commit(ctx, payment, byID)
}

// commit applies the payment's allocations to the given debts and saves them
// together with the payment, provided none moved past the version read
func (a *PaymentAllocator) commit(ctx context.Context, payment *billing.Payment, byID map[uuid.UUID]*billing.DebtItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := a.clock.Now()
	mutated := make([]*billing.DebtItem, 0, len(byID))
	for id, amount := range payment.AppliedByDebt() {
		debt := byID[id]
		if err := debt.ApplyAllocation(amount, a.config.OverpaymentPolicy, now); err != nil {
			return err
		}
		mutated = append(mutated, debt)
	}
	// A stable write order keeps concurrent payments from deadlocking on row locks.
	slices.SortFunc(mutated, func(x, y *billing.DebtItem) int {
		return strings.Compare(x.ID.String(), y.ID.String())
	})

	return a.paymentRepo.SaveWithDebts(ctx, payment, mutated)
}

// missingDebtsError lists every requested id absent from found, or returns nil
func missingDebtsError(ids []uuid.UUID, found map[uuid.UUID]*billing.DebtItem) error {
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return shared.NewNotFoundError("Debt items not found: %s", strings.Join(missing, ", "))
}

// GetPayment returns a stored payment
func (a *PaymentAllocator) GetPayment(ctx context.Context, id uuid.UUID) (*PaymentResponse, error) {
	payment, err := a.FindPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToPaymentResponse(payment)
	return &resp, nil
}

// FindPayment returns the stored payment entity, used to render receipts
func (a *PaymentAllocator) FindPayment(ctx context.Context, id uuid.UUID) (*billing.Payment, error) {
	payment, err := a.paymentRepo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewNotFoundError("Payment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return payment, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
