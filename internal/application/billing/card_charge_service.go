package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultCardMethodLabel is the payment method recorded for card charges
const DefaultCardMethodLabel = "Credit Card"

// Card charge error codes
const (
	CodeNothingOutstanding = "NOTHING_OUTSTANDING"
	CodeCardDeclined       = "CARD_DECLINED"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
)

// CardChargeService charges a renter's stored card for selected debts and
// records the result as a payment
type CardChargeService struct {
	renterRepo billing.RenterRepository
	debtRepo   billing.DebtItemRepository
	gateway    billing.CardGateway
	allocator  *PaymentAllocator
	clock      shared.Clock
	logger     *zap.Logger
	currency   string
}

// NewCardChargeService creates a new CardChargeService
func NewCardChargeService(
	renterRepo billing.RenterRepository,
	debtRepo billing.DebtItemRepository,
	gateway billing.CardGateway,
	allocator *PaymentAllocator,
	clock shared.Clock,
	logger *zap.Logger,
	currency string,
) *CardChargeService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if currency == "" {
		currency = "USD"
	}
	return &CardChargeService{
		renterRepo: renterRepo,
		debtRepo:   debtRepo,
		gateway:    gateway,
		allocator:  allocator,
		clock:      clock,
		logger:     logger,
		currency:   currency,
	}
}

// ChargeStoredCard charges the outstanding balance of the given debts to one
// of the renter's stored cards. Every check (card, debts, ownership, amount)
// runs before the gateway is contacted.
func (s *CardChargeService) ChargeStoredCard(ctx context.Context, req ChargeCardRequest) (*ChargeCardResult, error) {
	if len(req.DebtItemIDs) == 0 {
		return nil, shared.NewInvalidInputError("At least one debt item is required")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "card_charge", "charge",
		telemetry.WithAttribute("renter_id", req.RenterID.String()),
		telemetry.WithAttribute("debts", len(req.DebtItemIDs)))
	defer span.End()

	renter, err := s.renterRepo.FindByID(ctx, req.RenterID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewNotFoundError("Renter %s not found", req.RenterID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load renter: %w", err)
	}

	card, ok := renter.FindCard(strings.TrimSpace(req.CardLast4))
	if !ok {
		return nil, shared.NewNotFoundError("card not found")
	}

	ids := dedupeUUIDs(req.DebtItemIDs)
	debts, err := s.debtRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load debt items: %w", err)
	}
	byID := make(map[uuid.UUID]*billing.DebtItem, len(debts))
	for i := range debts {
		byID[debts[i].ID] = &debts[i]
	}
	if err := missingDebtsError(ids, byID); err != nil {
		return nil, err
	}

	total := decimal.Zero
	allocations := make([]billing.PaymentAllocation, 0, len(ids))
	for _, id := range ids {
		debt := byID[id]
		if !debt.IsOwnedBy(req.RenterID) {
			return nil, shared.NewForbiddenError("Debt item %s does not belong to renter %s", id, req.RenterID)
		}
		outstanding := debt.AmountOutstanding()
		if !outstanding.IsPositive() {
			continue
		}
		renterID := req.RenterID
		allocations = append(allocations, billing.PaymentAllocation{
			DebtItemID:    id,
			AmountApplied: outstanding,
			RenterID:      &renterID,
		})
		total = total.Add(outstanding)
	}
	if !total.IsPositive() {
		return nil, shared.NewDomainError(CodeNothingOutstanding, "Selected debts have nothing outstanding")
	}

	key := ChargeIdempotencyKey(req.RenterID, byID)
	charge, err := s.gateway.Charge(ctx, billing.CardChargeRequest{
		IdempotencyKey: key,
		RenterID:       req.RenterID,
		Card:           card,
		Amount:         total,
		Currency:       s.currency,
		Description:    fmt.Sprintf("Rent portal payment for %d item(s)", len(allocations)),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, mapGatewayError(err)
	}

	label := strings.TrimSpace(req.MethodLabel)
	if label == "" {
		label = DefaultCardMethodLabel
	}
	// Commit against the debt versions the charged total was computed from
	payment, err := s.allocator.ApplyPaymentAt(ctx, ApplyPaymentRequest{
		PaymentDate: s.clock.Now(),
		TotalAmount: total,
		Methods:     []billing.PaymentMethod{{Method: label, Amount: total, Details: card.Descriptor()}},
		Allocations: allocations,
	}, debts)
	if err != nil {
		// The card was charged but the ledger was not updated; the gateway
		// reference is needed to reconcile by hand.
		s.logger.Error("Card charged but payment could not be recorded",
			zap.String("renter_id", req.RenterID.String()),
			zap.String("provider", charge.Provider),
			zap.String("reference", charge.Reference),
			zap.String("amount", FormatMoney(total)),
			zap.Error(err))
		telemetry.RecordError(span, err)
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, shared.NewConflictError(
				"Selected debts changed while the card was being charged, charge %s needs reconciliation", charge.Reference)
		}
		return nil, err
	}
	telemetry.SetOK(span)

	paidIDs := make([]uuid.UUID, len(allocations))
	for i, a := range allocations {
		paidIDs[i] = a.DebtItemID
	}

	s.logger.Info("Stored card charged",
		zap.String("renter_id", req.RenterID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("card", card.Descriptor()),
		zap.String("total", FormatMoney(total)),
		zap.String("reference", charge.Reference))

	return &ChargeCardResult{
		PaymentID:    payment.ID,
		TotalCharged: FormatMoney(total),
		DebtItemIDs:  paidIDs,
		Provider:     charge.Provider,
		Reference:    charge.Reference,
	}, nil
}

// ChargeIdempotencyKey derives the gateway key from the renter and the
// current version of every debt being paid. Paying the same debts again
// after they changed yields a different key.
func ChargeIdempotencyKey(renterID uuid.UUID, debts map[uuid.UUID]*billing.DebtItem) string {
	parts := make([]string, 0, len(debts))
	for id, d := range debts {
		parts = append(parts, fmt.Sprintf("%s:%d", id, d.Version))
	}
	slices.Sort(parts)

	sum := sha256.Sum256([]byte(renterID.String() + "|" + strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

func mapGatewayError(err error) error {
	switch {
	case errors.Is(err, billing.ErrDuplicateCharge):
		return err
	case errors.Is(err, billing.ErrCardDeclined):
		return shared.NewDomainError(CodeCardDeclined, "The card was declined")
	case errors.Is(err, billing.ErrGatewayUnavailable), errors.Is(err, billing.ErrGatewayNotConfigured):
		return shared.NewDomainError(CodeGatewayUnavailable, "The payment gateway is unavailable, try again later")
	default:
		return fmt.Errorf("card charge failed: %w", err)
	}
}

func dedupeUUIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
