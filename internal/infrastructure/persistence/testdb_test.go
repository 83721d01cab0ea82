package persistence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var fixtureNow = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

// setupBillingTestDB opens an in-memory SQLite database with the billing
// schema. A single connection keeps every query on the same memory database.
func setupBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllBillingModels()...))
	return db
}

type billingFixture struct {
	property *billing.Property
	unit     *billing.Unit
	renter   *billing.Renter
	lease    *billing.Lease
}

func seedBillingFixture(t *testing.T, db *gorm.DB, name string, lat, lng float64) billingFixture {
	t.Helper()
	ctx := t.Context()

	property := &billing.Property{
		BaseEntity: shared.NewBaseEntity(fixtureNow),
		Name:       name,
		Address:    "1 Main St",
		TotalUnits: 4,
		Latitude:   lat,
		Longitude:  lng,
	}
	require.NoError(t, NewGormPropertyRepository(db).Save(ctx, property))

	unit, err := billing.NewUnit(property.ID, "2B", fixtureNow)
	require.NoError(t, err)

	renter := &billing.Renter{
		BaseEntity:  shared.NewBaseEntity(fixtureNow),
		FirstName:   "Ana",
		LastName:    "Reyes",
		CreditCards: []billing.StoredCard{{Last4Digits: "4242", Type: "Visa", Expiration: "12/28"}},
	}
	require.NoError(t, NewGormRenterRepository(db).Save(ctx, renter))

	lease, err := billing.NewLease(unit.ID, []uuid.UUID{renter.ID}, decimal.NewFromInt(1200),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		decimal.Zero, decimal.Zero, fixtureNow)
	require.NoError(t, err)
	unit.Occupy(fixtureNow)
	require.NoError(t, NewGormLeaseRepository(db).SaveWithUnit(ctx, lease, unit))

	return billingFixture{property: property, unit: unit, renter: renter, lease: lease}
}
