package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
)

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// LedgerTotalsProvider reports the current outstanding ledger for gauges
type LedgerTotalsProvider interface {
	OutstandingTotals(ctx context.Context) (balance decimal.Decimal, debts int64, err error)
}

// BillingMetricsConfig holds configuration for billing metrics.
type BillingMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // default 5m
	Ledger          LedgerTotalsProvider
}

// BillingMetrics counts ledger activity. It subscribes to the domain event
// bus for charges and payments; card outcomes are reported by the gateway.
type BillingMetrics struct {
	logger   *zap.Logger
	ledger   LedgerTotalsProvider
	interval time.Duration

	debtsCharged     *Counter
	amountCharged    *Counter
	paymentsApplied  *Counter
	amountReceived   *Counter
	paymentAttempts  *Histogram
	cardCharges      *Counter
	outstanding      *FloatGauge
	outstandingDebts *FloatGauge

	stopChan chan struct{}
	stopOnce sync.Once
	runOnce  sync.Once
}

// NewBillingMetrics registers the billing instruments on the meter
func NewBillingMetrics(cfg BillingMetricsConfig) (*BillingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.CollectInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	bm := &BillingMetrics{logger: logger, ledger: cfg.Ledger, interval: interval, stopChan: make(chan struct{})}

	var err error
	if bm.debtsCharged, err = NewCounter(cfg.Meter, "rentals_debt_charged_total", "Debt items written to the ledger", "{debts}"); err != nil {
		return nil, err
	}
	if bm.amountCharged, err = NewCounter(cfg.Meter, "rentals_debt_charged_amount_total", "Amount charged in minor currency units", "{cents}"); err != nil {
		return nil, err
	}
	if bm.paymentsApplied, err = NewCounter(cfg.Meter, "rentals_payment_applied_total", "Payments committed", "{payments}"); err != nil {
		return nil, err
	}
	if bm.amountReceived, err = NewCounter(cfg.Meter, "rentals_payment_amount_total", "Amount received in minor currency units", "{cents}"); err != nil {
		return nil, err
	}
	if bm.paymentAttempts, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "rentals_payment_attempts",
		Description: "Optimistic-lock attempts needed to commit a payment",
		Unit:        "{attempts}",
		Boundaries:  SmallCountBuckets,
	}); err != nil {
		return nil, err
	}
	if bm.cardCharges, err = NewCounter(cfg.Meter, "rentals_card_charge_total", "Stored-card charge attempts by outcome", "{charges}"); err != nil {
		return nil, err
	}
	if bm.outstanding, err = NewFloatGauge(cfg.Meter, "rentals_outstanding_balance", "Sum of outstanding debt amounts", "{currency}"); err != nil {
		return nil, err
	}
	if bm.outstandingDebts, err = NewFloatGauge(cfg.Meter, "rentals_outstanding_debts", "Number of debts with a positive balance", "{debts}"); err != nil {
		return nil, err
	}
	return bm, nil
}

// Handle implements shared.EventHandler
func (bm *BillingMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *billing.DebtChargedEvent:
		bm.debtsCharged.Inc(ctx, AttrDebtType.String(e.DebtType))
		bm.amountCharged.Add(ctx, minorUnits(e.AmountDue), AttrDebtType.String(e.DebtType))
	case *billing.PaymentAppliedEvent:
		bm.paymentsApplied.Inc(ctx)
		bm.amountReceived.Add(ctx, minorUnits(e.TotalAmount))
		bm.paymentAttempts.Record(ctx, float64(e.Attempts))
	}
	return nil
}

// EventTypes implements shared.EventHandler
func (bm *BillingMetrics) EventTypes() []string {
	return []string{billing.EventTypeDebtCharged, billing.EventTypePaymentApplied}
}

// RecordCardCharge counts a gateway outcome such as "charged", "declined" or "duplicate"
func (bm *BillingMetrics) RecordCardCharge(ctx context.Context, provider, outcome string) {
	bm.cardCharges.Inc(ctx, AttrProvider.String(provider), AttrOutcome.String(outcome))
}

// Collect records the ledger gauges once
func (bm *BillingMetrics) Collect(ctx context.Context) {
	if bm.ledger == nil {
		return
	}
	balance, debts, err := bm.ledger.OutstandingTotals(ctx)
	if err != nil {
		bm.logger.Warn("Failed to collect outstanding totals", zap.Error(err))
		return
	}
	bm.outstanding.Record(ctx, balance.InexactFloat64())
	bm.outstandingDebts.Record(ctx, float64(debts))
}

// Start collects the gauges every interval until Stop or ctx is done
func (bm *BillingMetrics) Start(ctx context.Context) {
	bm.runOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(bm.interval)
			defer ticker.Stop()
			bm.Collect(ctx)
			for {
				select {
				case <-bm.stopChan:
					return
				case <-ctx.Done():
					return
				case <-ticker.C:
					bm.Collect(ctx)
				}
			}
		}()
	})
}

// Stop ends periodic collection
func (bm *BillingMetrics) Stop() {
	bm.stopOnce.Do(func() { close(bm.stopChan) })
}

func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

var _ shared.EventHandler = (*BillingMetrics)(nil)
