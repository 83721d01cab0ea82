package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ChargeGenerator turns active leases and metered usage into debt items
type ChargeGenerator struct {
	leaseRepo billing.LeaseRepository
	unitRepo  billing.UnitRepository
	debtRepo  billing.DebtItemRepository
	readings  billing.ReadingStore
	eventBus  shared.EventPublisher
	clock     shared.Clock
	logger    *zap.Logger
}

// NewChargeGenerator creates a new ChargeGenerator
func NewChargeGenerator(
	leaseRepo billing.LeaseRepository,
	unitRepo billing.UnitRepository,
	debtRepo billing.DebtItemRepository,
	readings billing.ReadingStore,
	clock shared.Clock,
	logger *zap.Logger,
) *ChargeGenerator {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	return &ChargeGenerator{
		leaseRepo: leaseRepo,
		unitRepo:  unitRepo,
		debtRepo:  debtRepo,
		readings:  readings,
		clock:     clock,
		logger:    logger,
	}
}

// SetEventPublisher sets the event publisher for cross-context communication
func (g *ChargeGenerator) SetEventPublisher(publisher shared.EventPublisher) {
	g.eventBus = publisher
}

// GenerateCharges creates next month's rent and this month's utility charges
// for every lease active on asOf. A zero asOf means today.
//
// Charges are keyed by (lease, charge key), so repeating a run for the same
// month creates nothing new. All charges of a run are stored in one
// transaction; a failure or cancellation before commit stores none.
func (g *ChargeGenerator) GenerateCharges(ctx context.Context, asOf time.Time) (*ChargeRunResult, error) {
	if asOf.IsZero() {
		asOf = g.clock.Now()
	}
	day := billing.DateOf(asOf)

	ctx, span := telemetry.StartServiceSpan(ctx, "charge_run", "generate",
		telemetry.WithAttribute("as_of", FormatDate(day)))
	defer span.End()

	leases, err := g.leaseRepo.FindActiveOn(ctx, day)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load active leases: %w", err)
	}

	result := &ChargeRunResult{AsOf: FormatDate(day)}
	if len(leases) == 0 {
		g.logger.Info("Charge run found no active leases", zap.String("as_of", result.AsOf))
		return result, nil
	}

	unitIDs := make([]string, 0, len(leases))
	for i := range leases {
		unitIDs = append(unitIDs, leases[i].UnitID)
	}
	units, err := g.unitRepo.FindByIDs(ctx, unitIDs)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	unitsByID := make(map[string]*billing.Unit, len(units))
	for i := range units {
		unitsByID[units[i].ID] = &units[i]
	}

	usageFrom := billing.FirstOfMonth(day)
	usageTo := day.AddDate(0, 0, 1)

	var charges []*billing.DebtItem
	for i := range leases {
		lease := &leases[i]
		unit, ok := unitsByID[lease.UnitID]
		if !ok {
			result.LeasesSkipped++
			g.logger.Warn("Skipping lease with unknown unit",
				zap.String("lease_id", lease.ID.String()),
				zap.String("unit_id", lease.UnitID))
			continue
		}
		result.LeasesProcessed++

		charges = append(charges, billing.NewRentCharge(lease, unit, day))

		for _, kind := range billing.AllUtilityKinds() {
			usage, err := g.readings.SumReadings(ctx, unit.ID, kind, usageFrom, usageTo)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, fmt.Errorf("failed to sum %s readings for unit %s: %w", kind, unit.ID, err)
			}
			if charge := billing.NewUtilityCharge(lease, unit, kind, usage, day); charge != nil {
				charges = append(charges, charge)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	created, err := g.debtRepo.CreateCharges(ctx, charges)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to store charges: %w", err)
	}

	events := make([]shared.DomainEvent, 0, len(created))
	now := g.clock.Now()
	for _, d := range created {
		switch d.Type {
		case billing.DebtTypeRent:
			result.RentChargesCreated++
		case billing.DebtTypeUtility:
			result.UtilityChargesCreated++
		}
		events = append(events, billing.NewDebtChargedEvent(d, now))
	}

	if g.eventBus != nil && len(events) > 0 {
		if err := g.eventBus.Publish(ctx, events...); err != nil {
			g.logger.Error("Failed to publish charge events", zap.Error(err), zap.Int("count", len(events)))
		}
	}

	telemetry.SetAttributes(span,
		"rent_created", result.RentChargesCreated,
		"utility_created", result.UtilityChargesCreated,
		"skipped", result.LeasesSkipped)
	telemetry.SetOK(span)

	g.logger.Info("Charge run completed",
		zap.String("as_of", result.AsOf),
		zap.Int("leases", result.LeasesProcessed),
		zap.Int("skipped", result.LeasesSkipped),
		zap.Int("rent_created", result.RentChargesCreated),
		zap.Int("utility_created", result.UtilityChargesCreated),
		zap.Int("already_present", len(charges)-len(created)))

	return result, nil
}
