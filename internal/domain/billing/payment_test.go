package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	debtA, debtB := uuid.New(), uuid.New()
	allocations := []PaymentAllocation{
		{DebtItemID: debtA, AmountApplied: decimal.RequireFromString("50.00")},
		{DebtItemID: debtB, AmountApplied: decimal.RequireFromString("25.00")},
	}

	t.Run("derives total from allocations", func(t *testing.T) {
		p, err := NewPayment(time.Time{}, decimal.Zero, nil, allocations, testAsOf)

		require.NoError(t, err)
		assert.Equal(t, "75.00", p.TotalAmountReceived.StringFixed(2))
		assert.Equal(t, testAsOf, p.PaymentDate)
		assert.NotEqual(t, uuid.Nil, p.ID)
	})

	t.Run("accepts matching methods", func(t *testing.T) {
		methods := []PaymentMethod{
			{Method: "Card", Amount: decimal.RequireFromString("60"), Details: "Visa ****4242"},
			{Method: "Check", Amount: decimal.RequireFromString("15"), Details: "Check #1001"},
		}
		p, err := NewPayment(testAsOf, decimal.RequireFromString("75"), methods, allocations, testAsOf)

		require.NoError(t, err)
		assert.Len(t, p.PaymentMethods, 2)
	})

	t.Run("rejects total that differs from allocations", func(t *testing.T) {
		_, err := NewPayment(testAsOf, decimal.RequireFromString("80"), nil, allocations, testAsOf)
		assert.Error(t, err)
	})

	t.Run("rejects methods that differ from total", func(t *testing.T) {
		methods := []PaymentMethod{{Method: "Card", Amount: decimal.RequireFromString("70")}}
		_, err := NewPayment(testAsOf, decimal.Zero, methods, allocations, testAsOf)
		assert.Error(t, err)
	})

	t.Run("rejects empty allocations", func(t *testing.T) {
		_, err := NewPayment(testAsOf, decimal.Zero, nil, nil, testAsOf)
		assert.Error(t, err)
	})

	t.Run("rejects non-positive allocation", func(t *testing.T) {
		_, err := NewPayment(testAsOf, decimal.Zero, nil, []PaymentAllocation{
			{DebtItemID: debtA, AmountApplied: decimal.Zero},
		}, testAsOf)
		assert.Error(t, err)
	})
}

func TestPayment_AppliedByDebt(t *testing.T) {
	debtA, debtB := uuid.New(), uuid.New()
	p, err := NewPayment(testAsOf, decimal.Zero, nil, []PaymentAllocation{
		{DebtItemID: debtA, AmountApplied: decimal.RequireFromString("10")},
		{DebtItemID: debtB, AmountApplied: decimal.RequireFromString("5")},
		{DebtItemID: debtA, AmountApplied: decimal.RequireFromString("2.5")},
	}, testAsOf)
	require.NoError(t, err)

	applied := p.AppliedByDebt()
	assert.Equal(t, []uuid.UUID{debtA, debtB}, p.DebtItemIDs())
	assert.Equal(t, "12.50", applied[debtA].StringFixed(2))
	assert.Equal(t, "5.00", applied[debtB].StringFixed(2))
}
