package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/infrastructure/cache"
	"github.com/rentals/backend/internal/infrastructure/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) Charge(ctx context.Context, req billing.CardChargeRequest) (*billing.CardChargeResult, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*billing.CardChargeResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordCardCharge(ctx context.Context, provider, outcome string) {
	m.Called(ctx, provider, outcome)
}

type mockOrders struct {
	mock.Mock
}

func (m *mockOrders) Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	args := m.Called(data, extraHeaders)
	if r := args.Get(0); r != nil {
		return r.(map[string]interface{}), args.Error(1)
	}
	return nil, args.Error(1)
}

func chargeRequest() billing.CardChargeRequest {
	return billing.CardChargeRequest{
		IdempotencyKey: "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0",
		RenterID:       uuid.MustParse("7d4f3c2a-1b0e-4f5d-9c8b-7a6e5d4c3b2a"),
		Card:           billing.StoredCard{Last4Digits: "4242", Type: "Visa", Expiration: "08/29"},
		Amount:         decimal.RequireFromString("50.00"),
		Currency:       "usd",
		Description:    "Balance payment",
	}
}

func newStore(t *testing.T) *cache.InMemoryIdempotencyStore {
	t.Helper()
	store := cache.NewInMemoryIdempotencyStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, RetryDelay: time.Millisecond, IdempotencyTTL: time.Hour}
}

func TestLedgerGateway_Charge(t *testing.T) {
	g := NewLedgerGateway(zap.NewNop())

	t.Run("returns a ledger reference", func(t *testing.T) {
		res, err := g.Charge(context.Background(), chargeRequest())
		require.NoError(t, err)
		assert.Equal(t, ProviderLedger, res.Provider)
		assert.Regexp(t, `^ledger_[0-9a-f-]{36}$`, res.Reference)
		assert.False(t, res.ChargedAt.IsZero())
	})

	t.Run("declines non-positive amounts", func(t *testing.T) {
		req := chargeRequest()
		req.Amount = decimal.Zero
		_, err := g.Charge(context.Background(), req)
		assert.ErrorIs(t, err, billing.ErrCardDeclined)
	})

	t.Run("honours cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := g.Charge(ctx, chargeRequest())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRazorpayGateway_Charge(t *testing.T) {
	newGateway := func(orders orderAPI) *RazorpayGateway {
		return &RazorpayGateway{orders: orders, logger: zap.NewNop(), now: time.Now}
	}

	t.Run("creates an order in minor units", func(t *testing.T) {
		orders := new(mockOrders)
		orders.On("Create", mock.MatchedBy(func(data map[string]interface{}) bool {
			notes := data["notes"].(map[string]interface{})
			return data["amount"] == int64(5000) &&
				data["currency"] == "USD" &&
				len(data["receipt"].(string)) == 40 &&
				notes["card"] == "Visa ****4242"
		}), map[string]string(nil)).Return(map[string]interface{}{"id": "order_9A33XWu170gUtm"}, nil)

		res, err := newGateway(orders).Charge(context.Background(), chargeRequest())
		require.NoError(t, err)
		assert.Equal(t, ProviderRazorpay, res.Provider)
		assert.Equal(t, "order_9A33XWu170gUtm", res.Reference)
		orders.AssertExpectations(t)
	})

	t.Run("maps client errors", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			want error
		}{
			{"declined", errors.New("Payment declined by issuer"), billing.ErrCardDeclined},
			{"bad request", errors.New("BAD_REQUEST_ERROR: amount invalid"), billing.ErrCardDeclined},
			{"server", errors.New("The server encountered an error"), billing.ErrGatewayUnavailable},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				orders := new(mockOrders)
				orders.On("Create", mock.Anything, mock.Anything).Return(nil, tt.err)

				_, err := newGateway(orders).Charge(context.Background(), chargeRequest())
				assert.ErrorIs(t, err, tt.want)
			})
		}
	})

	t.Run("order without id is unavailable", func(t *testing.T) {
		orders := new(mockOrders)
		orders.On("Create", mock.Anything, mock.Anything).Return(map[string]interface{}{}, nil)

		_, err := newGateway(orders).Charge(context.Background(), chargeRequest())
		assert.ErrorIs(t, err, billing.ErrGatewayUnavailable)
	})

	t.Run("requires credentials", func(t *testing.T) {
		_, err := NewRazorpayGateway("", "", zap.NewNop())
		assert.ErrorIs(t, err, billing.ErrGatewayNotConfigured)
	})
}

func TestMinorUnits(t *testing.T) {
	req := chargeRequest()
	req.Amount = decimal.RequireFromString("62.45")
	assert.Equal(t, int64(6245), MinorUnits(req))
}

func TestIdempotentGateway_Charge(t *testing.T) {
	ok := &billing.CardChargeResult{Provider: "mock", Reference: "ch_1"}

	t.Run("charges once and refuses the same key", func(t *testing.T) {
		inner := new(mockGateway)
		inner.On("Charge", mock.Anything, mock.Anything).Return(ok, nil).Once()
		g := NewIdempotentGateway(inner, newStore(t), fastRetry(), zap.NewNop())

		res, err := g.Charge(context.Background(), chargeRequest())
		require.NoError(t, err)
		assert.Equal(t, "ch_1", res.Reference)

		_, err = g.Charge(context.Background(), chargeRequest())
		assert.ErrorIs(t, err, billing.ErrDuplicateCharge)
		inner.AssertNumberOfCalls(t, "Charge", 1)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		inner := new(mockGateway)
		inner.On("Charge", mock.Anything, mock.Anything).Return(nil, billing.ErrGatewayUnavailable).Twice()
		inner.On("Charge", mock.Anything, mock.Anything).Return(ok, nil).Once()
		g := NewIdempotentGateway(inner, newStore(t), fastRetry(), zap.NewNop())

		res, err := g.Charge(context.Background(), chargeRequest())
		require.NoError(t, err)
		assert.Equal(t, "ch_1", res.Reference)
		inner.AssertNumberOfCalls(t, "Charge", 3)
	})

	t.Run("gives up and releases the key", func(t *testing.T) {
		store := newStore(t)
		inner := new(mockGateway)
		inner.On("Charge", mock.Anything, mock.Anything).Return(nil, billing.ErrGatewayUnavailable)
		g := NewIdempotentGateway(inner, store, fastRetry(), zap.NewNop())

		_, err := g.Charge(context.Background(), chargeRequest())
		assert.ErrorIs(t, err, billing.ErrGatewayUnavailable)
		inner.AssertNumberOfCalls(t, "Charge", 3)

		processed, err := store.IsProcessed(context.Background(), chargeRequest().IdempotencyKey)
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("does not retry a declined card", func(t *testing.T) {
		inner := new(mockGateway)
		inner.On("Charge", mock.Anything, mock.Anything).Return(nil, billing.ErrCardDeclined)
		g := NewIdempotentGateway(inner, newStore(t), fastRetry(), zap.NewNop())

		_, err := g.Charge(context.Background(), chargeRequest())
		assert.ErrorIs(t, err, billing.ErrCardDeclined)
		inner.AssertNumberOfCalls(t, "Charge", 1)
	})

	t.Run("reports outcomes", func(t *testing.T) {
		inner := new(mockGateway)
		inner.On("Charge", mock.Anything, mock.Anything).Return(ok, nil).Once()
		recorder := new(mockRecorder)
		recorder.On("RecordCardCharge", mock.Anything, "mock", OutcomeCharged).Once()
		recorder.On("RecordCardCharge", mock.Anything, "mock", OutcomeDuplicate).Once()
		g := NewIdempotentGateway(inner, newStore(t), fastRetry(), zap.NewNop())
		g.SetRecorder(recorder)

		_, err := g.Charge(context.Background(), chargeRequest())
		require.NoError(t, err)
		_, err = g.Charge(context.Background(), chargeRequest())
		require.Error(t, err)
		recorder.AssertExpectations(t)
	})

	t.Run("requires a key", func(t *testing.T) {
		g := NewIdempotentGateway(new(mockGateway), newStore(t), fastRetry(), zap.NewNop())
		req := chargeRequest()
		req.IdempotencyKey = ""

		_, err := g.Charge(context.Background(), req)
		assert.Error(t, err)
	})

	t.Run("concurrent submissions charge once", func(t *testing.T) {
		inner := new(mockGateway)
		inner.On("Charge", mock.Anything, mock.Anything).Return(ok, nil)
		g := NewIdempotentGateway(inner, newStore(t), fastRetry(), zap.NewNop())

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, duplicates := 0, 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := g.Charge(context.Background(), chargeRequest())
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					succeeded++
				} else if errors.Is(err, billing.ErrDuplicateCharge) {
					duplicates++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 9, duplicates)
		inner.AssertNumberOfCalls(t, "Charge", 1)
	})
}

func TestNew(t *testing.T) {
	t.Run("ledger by default", func(t *testing.T) {
		g, err := New(config.GatewayConfig{}, newStore(t), zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, ProviderLedger, g.Name())
	})

	t.Run("razorpay", func(t *testing.T) {
		g, err := New(config.GatewayConfig{Provider: "razorpay", RazorpayKeyID: "rzp_test", RazorpaySecret: "s"}, newStore(t), zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, ProviderRazorpay, g.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(config.GatewayConfig{Provider: "stripe"}, newStore(t), zap.NewNop())
		assert.Error(t, err)
	})
}
