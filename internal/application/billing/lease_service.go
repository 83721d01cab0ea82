package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// LeaseService handles the lease lifecycle and the unit occupancy that follows it
type LeaseService struct {
	leaseRepo  billing.LeaseRepository
	unitRepo   billing.UnitRepository
	renterRepo billing.RenterRepository
	clock      shared.Clock
	logger     *zap.Logger
}

// NewLeaseService creates a new LeaseService
func NewLeaseService(
	leaseRepo billing.LeaseRepository,
	unitRepo billing.UnitRepository,
	renterRepo billing.RenterRepository,
	clock shared.Clock,
	logger *zap.Logger,
) *LeaseService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &LeaseService{
		leaseRepo:  leaseRepo,
		unitRepo:   unitRepo,
		renterRepo: renterRepo,
		clock:      clock,
		logger:     logger,
	}
}

// CreateLease creates a lease on an existing unit and marks the unit occupied
func (s *LeaseService) CreateLease(ctx context.Context, req CreateLeaseRequest) (*LeaseResponse, error) {
	unit, err := s.unitRepo.FindByID(ctx, req.UnitID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewNotFoundError("Unit %s not found", req.UnitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load unit: %w", err)
	}

	if len(req.RenterIDs) > 0 {
		renters, err := s.renterRepo.FindByIDs(ctx, req.RenterIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load renters: %w", err)
		}
		found := make(map[uuid.UUID]struct{}, len(renters))
		for _, r := range renters {
			found[r.ID] = struct{}{}
		}
		for _, id := range req.RenterIDs {
			if _, ok := found[id]; !ok {
				return nil, shared.NewNotFoundError("Renter %s not found", id)
			}
		}
	}

	now := s.clock.Now()
	lease, err := billing.NewLease(req.UnitID, req.RenterIDs, req.LeaseAmount,
		req.StartDate, req.EndDate, req.PowerUnitPrice, req.WaterUnitPrice, now)
	if err != nil {
		return nil, err
	}
	lease.LegalDocumentID = req.LegalDocumentID
	unit.Occupy(now)

	if err := s.leaseRepo.SaveWithUnit(ctx, lease, unit); err != nil {
		return nil, fmt.Errorf("failed to store lease: %w", err)
	}

	s.logger.Info("Lease created",
		zap.String("lease_id", lease.ID.String()),
		zap.String("unit_id", lease.UnitID),
		zap.Int("renters", len(lease.RenterIDs)))

	resp := ToLeaseResponse(lease)
	return &resp, nil
}

// TerminateLease ends a lease today and marks its unit vacant from today
func (s *LeaseService) TerminateLease(ctx context.Context, id uuid.UUID) (*LeaseResponse, error) {
	lease, err := s.leaseRepo.FindByID(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewNotFoundError("Lease %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lease: %w", err)
	}

	now := s.clock.Now()
	if err := lease.Terminate(now); err != nil {
		return nil, err
	}

	unit, err := s.unitRepo.FindByID(ctx, lease.UnitID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Warn("Terminating lease whose unit no longer exists",
			zap.String("lease_id", lease.ID.String()),
			zap.String("unit_id", lease.UnitID))
		unit = nil
	case err != nil:
		return nil, fmt.Errorf("failed to load unit: %w", err)
	default:
		unit.Vacate(now)
	}

	if err := s.leaseRepo.SaveWithUnit(ctx, lease, unit); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store lease: %w", err)
	}

	s.logger.Info("Lease terminated",
		zap.String("lease_id", lease.ID.String()),
		zap.String("end_date", FormatDate(lease.EndDate)))

	resp := ToLeaseResponse(lease)
	return &resp, nil
}

// ActiveLeaseForUnit returns the lease active today on a unit
func (s *LeaseService) ActiveLeaseForUnit(ctx context.Context, unitID string) (*LeaseResponse, error) {
	lease, err := s.leaseRepo.FindActiveByUnit(ctx, unitID, s.clock.Now())
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.NewNotFoundError("No active lease for unit %s", unitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lease: %w", err)
	}
	resp := ToLeaseResponse(lease)
	return &resp, nil
}
