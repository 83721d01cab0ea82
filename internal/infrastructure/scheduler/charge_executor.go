package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	billingapp "github.com/rentals/backend/internal/application/billing"
)

// ChargeRunner generates the periodic charges
type ChargeRunner interface {
	GenerateCharges(ctx context.Context, asOf time.Time) (*billingapp.ChargeRunResult, error)
}

// ChargeRunExecutor executes CHARGE_RUN jobs
type ChargeRunExecutor struct {
	runner ChargeRunner
	logger *zap.Logger
}

// NewChargeRunExecutor creates a new ChargeRunExecutor
func NewChargeRunExecutor(runner ChargeRunner, logger *zap.Logger) *ChargeRunExecutor {
	return &ChargeRunExecutor{runner: runner, logger: logger}
}

// Execute runs the charge generator for the job's date
func (e *ChargeRunExecutor) Execute(ctx context.Context, job *Job) error {
	result, err := e.runner.GenerateCharges(ctx, job.AsOf)
	if err != nil {
		return err
	}
	e.logger.Info("Scheduled charge run finished",
		zap.String("job_id", job.ID.String()),
		zap.String("as_of", result.AsOf),
		zap.Int("leases", result.LeasesProcessed),
		zap.Int("rent_charges", result.RentChargesCreated),
		zap.Int("utility_charges", result.UtilityChargesCreated),
	)
	return nil
}
