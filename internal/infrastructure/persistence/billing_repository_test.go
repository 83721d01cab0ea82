package persistence

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormLeaseRepository(t *testing.T) {
	db := setupBillingTestDB(t)
	fx := seedBillingFixture(t, db, "Elm Court", 40.0, -73.0)
	repo := NewGormLeaseRepository(db)
	ctx := t.Context()

	t.Run("round trips lease with renters and prices", func(t *testing.T) {
		got, err := repo.FindByID(ctx, fx.lease.ID)
		require.NoError(t, err)
		assert.Equal(t, fx.unit.ID, got.UnitID)
		assert.Equal(t, []uuid.UUID{fx.renter.ID}, got.RenterIDs)
		assert.True(t, got.PowerUnitPrice.Equal(billing.DefaultPowerUnitPrice))
		assert.True(t, got.LeaseAmount.Equal(decimal.NewFromInt(1200)))
		assert.Equal(t, 1, got.Version)
	})

	t.Run("active range is inclusive at both ends", func(t *testing.T) {
		for _, day := range []time.Time{fx.lease.StartDate, fx.lease.EndDate, fixtureNow} {
			leases, err := repo.FindActiveOn(ctx, day)
			require.NoError(t, err)
			assert.Len(t, leases, 1, day.String())
		}
		leases, err := repo.FindActiveOn(ctx, fx.lease.EndDate.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Empty(t, leases)
	})

	t.Run("finds active lease by unit", func(t *testing.T) {
		got, err := repo.FindActiveByUnit(ctx, fx.unit.ID, fixtureNow)
		require.NoError(t, err)
		assert.Equal(t, fx.lease.ID, got.ID)

		_, err = repo.FindActiveByUnit(ctx, "missing/1", fixtureNow)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("termination is version checked", func(t *testing.T) {
		lease, err := repo.FindByID(ctx, fx.lease.ID)
		require.NoError(t, err)
		stale := *lease

		require.NoError(t, lease.Terminate(fixtureNow))
		fx.unit.Vacate(fixtureNow)
		require.NoError(t, repo.SaveWithUnit(ctx, lease, fx.unit))

		require.NoError(t, stale.Terminate(fixtureNow))
		err = repo.SaveWithUnit(ctx, &stale, nil)
		assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))

		unit, err := NewGormUnitRepository(db).FindByID(ctx, fx.unit.ID)
		require.NoError(t, err)
		assert.True(t, unit.IsVacant())
	})
}

func TestGormRenterRepository(t *testing.T) {
	db := setupBillingTestDB(t)
	fx := seedBillingFixture(t, db, "Elm Court", 40.0, -73.0)
	repo := NewGormRenterRepository(db)
	ctx := t.Context()

	got, err := repo.FindByID(ctx, fx.renter.ID)
	require.NoError(t, err)
	card, ok := got.FindCard("4242")
	assert.True(t, ok)
	assert.Equal(t, "Visa", card.Type)

	exists, err := repo.ExistsByID(ctx, fx.renter.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)

	renters, err := repo.FindByIDs(ctx, []uuid.UUID{fx.renter.ID, uuid.New()})
	require.NoError(t, err)
	assert.Len(t, renters, 1)
}

func TestGormDebtItemRepository_CreateCharges(t *testing.T) {
	db := setupBillingTestDB(t)
	fx := seedBillingFixture(t, db, "Elm Court", 40.0, -73.0)
	repo := NewGormDebtItemRepository(db)
	ctx := t.Context()

	rent := billing.NewRentCharge(fx.lease, fx.unit, fixtureNow)
	power := billing.NewUtilityCharge(fx.lease, fx.unit, billing.UtilityPower, decimal.NewFromInt(300), fixtureNow)

	created, err := repo.CreateCharges(ctx, []*billing.DebtItem{rent, power})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	t.Run("a second run for the same period creates nothing", func(t *testing.T) {
		again := billing.NewRentCharge(fx.lease, fx.unit, fixtureNow.Add(2*time.Hour))
		created, err := repo.CreateCharges(ctx, []*billing.DebtItem{again})
		require.NoError(t, err)
		assert.Empty(t, created)

		var count int64
		require.NoError(t, db.Table("debt_items").Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("stored charge keeps its fields", func(t *testing.T) {
		got, err := repo.FindByID(ctx, power.ID)
		require.NoError(t, err)
		assert.Equal(t, "36.00", got.AmountDue.StringFixed(2))
		assert.Equal(t, billing.DebtTypeUtility, got.Type)
		assert.Equal(t, "UTILITY:POWER:2026-10", got.ChargeKey)
		assert.Equal(t, []uuid.UUID{fx.renter.ID}, got.RenterIDs)
		assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), got.DueDate)
	})

	t.Run("fees on the same lease never collide", func(t *testing.T) {
		for range 2 {
			fee, err := billing.NewFee(fx.renter.ID, billing.FeeDetails{
				LeaseID:   &fx.lease.ID,
				AmountDue: decimal.NewFromInt(25),
			}, fixtureNow)
			require.NoError(t, err)
			require.NoError(t, repo.Create(ctx, fee))

			got, err := repo.FindByID(ctx, fee.ID)
			require.NoError(t, err)
			assert.Empty(t, got.ChargeKey)
		}
	})
}

func TestGormDebtItemRepository_FindOutstanding(t *testing.T) {
	db := setupBillingTestDB(t)
	north := seedBillingFixture(t, db, "North Tower", 47.6, -122.3)
	south := seedBillingFixture(t, db, "South Lofts", 25.7, -80.2)
	repo := NewGormDebtItemRepository(db)
	ctx := t.Context()

	northRent := billing.NewRentCharge(north.lease, north.unit, fixtureNow)
	southRent := billing.NewRentCharge(south.lease, south.unit, fixtureNow)
	southOld := billing.NewUtilityCharge(south.lease, south.unit, billing.UtilityWater, decimal.NewFromInt(1000), fixtureNow.AddDate(0, -1, 0))
	_, err := repo.CreateCharges(ctx, []*billing.DebtItem{northRent, southRent, southOld})
	require.NoError(t, err)

	paidOff, err := billing.NewFee(north.renter.ID, billing.FeeDetails{AmountDue: decimal.NewFromInt(50)}, fixtureNow)
	require.NoError(t, err)
	paidOff.AmountPaid = decimal.NewFromInt(50)
	require.NoError(t, repo.Create(ctx, paidOff))

	t.Run("orders by due date and excludes settled debts", func(t *testing.T) {
		rows, err := repo.FindOutstanding(ctx, billing.OutstandingFilter{})
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, southOld.ID, rows[0].ID)
		assert.Equal(t, "South Lofts", rows[0].PropertyName)
	})

	t.Run("filters by bounding box", func(t *testing.T) {
		rows, err := repo.FindOutstanding(ctx, billing.OutstandingFilter{
			Bounds: &billing.GeoBounds{MinLat: 45, MinLng: -125, MaxLat: 50, MaxLng: -120},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, northRent.ID, rows[0].ID)
		assert.Equal(t, "North Tower", rows[0].PropertyName)
	})

	t.Run("applies the limit", func(t *testing.T) {
		rows, err := repo.FindOutstanding(ctx, billing.OutstandingFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("totals the outstanding ledger", func(t *testing.T) {
		rows, err := repo.FindOutstanding(ctx, billing.OutstandingFilter{})
		require.NoError(t, err)
		want := decimal.Zero
		for _, row := range rows {
			want = want.Add(row.AmountOutstanding())
		}

		balance, debts, err := repo.OutstandingTotals(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), debts)
		assert.True(t, want.Equal(balance), "want %s got %s", want, balance)
	})

	t.Run("finds debts by renter", func(t *testing.T) {
		all, err := repo.FindByRenter(ctx, north.renter.ID, false)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		open, err := repo.FindByRenter(ctx, north.renter.ID, true)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, northRent.ID, open[0].ID)
	})
}

func TestGormPaymentRepository_SaveWithDebts(t *testing.T) {
	db := setupBillingTestDB(t)
	fx := seedBillingFixture(t, db, "Elm Court", 40.0, -73.0)
	debts := NewGormDebtItemRepository(db)
	payments := NewGormPaymentRepository(db)
	ctx := t.Context()

	rent := billing.NewRentCharge(fx.lease, fx.unit, fixtureNow)
	_, err := debts.CreateCharges(ctx, []*billing.DebtItem{rent})
	require.NoError(t, err)

	pay := func(amount int64) (*billing.Payment, *billing.DebtItem) {
		debt, err := debts.FindByID(ctx, rent.ID)
		require.NoError(t, err)
		require.NoError(t, debt.ApplyAllocation(decimal.NewFromInt(amount), billing.OverpaymentAllow, fixtureNow))
		p, err := billing.NewPayment(fixtureNow, decimal.Zero,
			[]billing.PaymentMethod{{Method: "Cash", Amount: decimal.NewFromInt(amount)}},
			[]billing.PaymentAllocation{{DebtItemID: rent.ID, AmountApplied: decimal.NewFromInt(amount)}},
			fixtureNow)
		require.NoError(t, err)
		return p, debt
	}

	t.Run("stores payment and bumps the debt", func(t *testing.T) {
		p, debt := pay(700)
		require.NoError(t, payments.SaveWithDebts(ctx, p, []*billing.DebtItem{debt}))

		stored, err := payments.FindByID(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, stored.PaymentMethods, 1)
		require.Len(t, stored.Allocations, 1)
		assert.Equal(t, "700.00", stored.TotalAmountReceived.StringFixed(2))

		reloaded, err := debts.FindByID(ctx, rent.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, reloaded.Version)
		assert.Equal(t, "500.00", reloaded.AmountOutstanding().StringFixed(2))
	})

	t.Run("stale version conflicts and writes nothing", func(t *testing.T) {
		first, firstDebt := pay(100)
		second, secondDebt := pay(200)

		require.NoError(t, payments.SaveWithDebts(ctx, first, []*billing.DebtItem{firstDebt}))
		err := payments.SaveWithDebts(ctx, second, []*billing.DebtItem{secondDebt})
		assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))

		_, err = payments.FindByID(ctx, second.ID)
		assert.True(t, errors.Is(err, shared.ErrNotFound))

		reloaded, err := debts.FindByID(ctx, rent.ID)
		require.NoError(t, err)
		assert.Equal(t, "800.00", reloaded.AmountPaid.StringFixed(2))
	})
}

func TestGormReadingStore(t *testing.T) {
	db := setupBillingTestDB(t)
	store := NewGormReadingStore(db)
	ctx := t.Context()
	unitID := uuid.New().String() + "/1A"

	at := func(day, hour, minute int) time.Time {
		return time.Date(2026, 10, day, hour, minute, 0, 0, time.UTC)
	}
	var readings []billing.MeterReading
	for _, s := range []struct {
		ts    time.Time
		value int64
	}{
		{at(1, 0, 0), 100},
		{at(1, 0, 30), 50},
		{at(14, 23, 0), 150},
		{at(15, 8, 0), 25},
		{at(16, 0, 0), 999},
		{time.Date(2026, 9, 30, 23, 59, 0, 0, time.UTC), 7},
	} {
		r, err := billing.NewMeterReading(unitID, billing.UtilityPower, s.ts, decimal.NewFromInt(s.value), "")
		require.NoError(t, err)
		readings = append(readings, r)
	}
	water, err := billing.NewMeterReading(unitID, billing.UtilityWater, at(2, 0, 0), decimal.NewFromInt(40), "")
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, append(readings, water)))

	t.Run("sums half-open range per kind", func(t *testing.T) {
		sum, err := store.SumReadings(ctx, unitID, billing.UtilityPower, at(1, 0, 0), at(16, 0, 0))
		require.NoError(t, err)
		assert.Equal(t, "325", sum.String())
	})

	t.Run("no readings sums to zero", func(t *testing.T) {
		sum, err := store.SumReadings(ctx, "other/1", billing.UtilityPower, at(1, 0, 0), at(16, 0, 0))
		require.NoError(t, err)
		assert.True(t, sum.IsZero())
	})

	t.Run("buckets hourly usage", func(t *testing.T) {
		points, err := store.HourlyUsage(ctx, unitID, billing.UtilityPower, at(1, 0, 0), at(16, 0, 0))
		require.NoError(t, err)
		require.Len(t, points, 3)
		assert.Equal(t, at(1, 0, 0), points[0].Timestamp)
		assert.Equal(t, "150", points[0].Value.String())
		assert.Equal(t, at(15, 8, 0), points[2].Timestamp)
	})
}
