package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LedgerService is the read side of the debt ledger plus ad-hoc fees
type LedgerService struct {
	debtRepo     billing.DebtItemRepository
	renterRepo   billing.RenterRepository
	eventBus     shared.EventPublisher
	clock        shared.Clock
	logger       *zap.Logger
	defaultLimit int
}

// NewLedgerService creates a new LedgerService. A non-positive defaultLimit
// falls back to billing.DefaultOutstandingLimit.
func NewLedgerService(
	debtRepo billing.DebtItemRepository,
	renterRepo billing.RenterRepository,
	clock shared.Clock,
	logger *zap.Logger,
	defaultLimit int,
) *LedgerService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if defaultLimit <= 0 || defaultLimit > billing.MaxOutstandingLimit {
		defaultLimit = billing.DefaultOutstandingLimit
	}
	return &LedgerService{
		debtRepo:     debtRepo,
		renterRepo:   renterRepo,
		clock:        clock,
		logger:       logger,
		defaultLimit: defaultLimit,
	}
}

// SetEventPublisher sets the event publisher for cross-context communication
func (s *LedgerService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventBus = publisher
}

// ListOutstandingDebts returns debts with a positive outstanding balance,
// oldest due date first, enriched with property, unit number and renters.
func (s *LedgerService) ListOutstandingDebts(ctx context.Context, q OutstandingQuery) ([]DebtResponse, error) {
	if q.Bounds != nil && !q.Bounds.IsValid() {
		return nil, shared.NewInvalidInputError("Invalid bounding box")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > billing.MaxOutstandingLimit {
		limit = billing.MaxOutstandingLimit
	}

	rows, err := s.debtRepo.FindOutstanding(ctx, billing.OutstandingFilter{Bounds: q.Bounds, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to query outstanding debts: %w", err)
	}

	var renterIDs []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for i := range rows {
		for _, id := range rows[i].RenterIDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				renterIDs = append(renterIDs, id)
			}
		}
	}

	renters := make(map[uuid.UUID]billing.Renter, len(renterIDs))
	if len(renterIDs) > 0 {
		found, err := s.renterRepo.FindByIDs(ctx, renterIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load renters: %w", err)
		}
		for _, r := range found {
			renters[r.ID] = r
		}
	}

	out := make([]DebtResponse, len(rows))
	for i := range rows {
		resp := ToDebtResponse(&rows[i].DebtItem)
		resp.PropertyName = rows[i].PropertyName
		resp.Renters = make([]RenterSummary, 0, len(rows[i].RenterIDs))
		for _, id := range rows[i].RenterIDs {
			if r, ok := renters[id]; ok {
				resp.Renters = append(resp.Renters, RenterSummary{ID: r.ID, FirstName: r.FirstName, LastName: r.LastName})
			}
		}
		out[i] = resp
	}
	return out, nil
}

// CreateFee adds an ad-hoc debt for a renter
func (s *LedgerService) CreateFee(ctx context.Context, renterID uuid.UUID, req FeeRequest) (*DebtResponse, error) {
	exists, err := s.renterRepo.ExistsByID(ctx, renterID)
	if err != nil {
		return nil, fmt.Errorf("failed to check renter: %w", err)
	}
	if !exists {
		return nil, shared.NewNotFoundError("Renter %s not found", renterID)
	}

	now := s.clock.Now()
	fee, err := billing.NewFee(renterID, billing.FeeDetails{
		LeaseID:     req.LeaseID,
		UnitID:      strings.TrimSpace(req.UnitID),
		PropertyID:  req.PropertyID,
		RenterIDs:   req.RenterIDs,
		Type:        req.Type,
		Description: req.Description,
		AmountDue:   req.AmountDue,
		DueDate:     req.DueDate,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := s.debtRepo.Create(ctx, fee); err != nil {
		return nil, fmt.Errorf("failed to store fee: %w", err)
	}

	if s.eventBus != nil {
		if err := s.eventBus.Publish(ctx, billing.NewDebtChargedEvent(fee, now)); err != nil {
			s.logger.Error("Failed to publish fee event", zap.Error(err), zap.String("debt_id", fee.ID.String()))
		}
	}

	s.logger.Info("Fee created",
		zap.String("debt_id", fee.ID.String()),
		zap.String("renter_id", renterID.String()),
		zap.String("amount", FormatMoney(fee.AmountDue)))

	resp := ToDebtResponse(fee)
	return &resp, nil
}

// GetDebt returns a single debt item
func (s *LedgerService) GetDebt(ctx context.Context, id uuid.UUID) (*DebtResponse, error) {
	debt, err := s.debtRepo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewNotFoundError("Debt item %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load debt item: %w", err)
	}
	resp := ToDebtResponse(debt)
	return &resp, nil
}

// ListDebtsForRenter returns the debts a renter is responsible for
func (s *LedgerService) ListDebtsForRenter(ctx context.Context, renterID uuid.UUID, onlyOutstanding bool) ([]DebtResponse, error) {
	exists, err := s.renterRepo.ExistsByID(ctx, renterID)
	if err != nil {
		return nil, fmt.Errorf("failed to check renter: %w", err)
	}
	if !exists {
		return nil, shared.NewNotFoundError("Renter %s not found", renterID)
	}
	debts, err := s.debtRepo.FindByRenter(ctx, renterID, onlyOutstanding)
	if err != nil {
		return nil, fmt.Errorf("failed to list renter debts: %w", err)
	}
	return ToDebtResponses(debts), nil
}
