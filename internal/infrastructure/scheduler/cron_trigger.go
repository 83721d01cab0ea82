package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rentals/backend/internal/infrastructure/config"
)

// CronTriggerConfig holds configuration for the monthly charge trigger
type CronTriggerConfig struct {
	// ChargeDayOfMonth and ChargeHour (UTC) mark the monthly slot
	ChargeDayOfMonth int
	ChargeHour       int

	// CheckInterval is how often the clock is polled
	CheckInterval time.Duration
}

// DefaultCronTriggerConfig returns default cron trigger configuration
func DefaultCronTriggerConfig() CronTriggerConfig {
	return CronTriggerConfig{
		ChargeDayOfMonth: 25,
		ChargeHour:       2,
		CheckInterval:    time.Minute,
	}
}

// CronTriggerConfigFrom maps the application configuration
func CronTriggerConfigFrom(cfg config.SchedulerConfig) CronTriggerConfig {
	c := DefaultCronTriggerConfig()
	if cfg.ChargeDayOfMonth > 0 {
		c.ChargeDayOfMonth = cfg.ChargeDayOfMonth
	}
	c.ChargeHour = cfg.ChargeHour
	if cfg.CheckInterval > 0 {
		c.CheckInterval = cfg.CheckInterval
	}
	return c
}

// CronTrigger submits a charge run once per monthly slot. The slot opens at
// ChargeHour on ChargeDayOfMonth and stays open for the rest of that day, so
// a restart during the day still fires. Charge dedupe keys make a second
// run in the same month harmless.
type CronTrigger struct {
	config    CronTriggerConfig
	scheduler *Scheduler
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastSlot  string
}

// NewCronTrigger creates a new cron trigger
func NewCronTrigger(cfg CronTriggerConfig, scheduler *Scheduler, logger *zap.Logger) *CronTrigger {
	return &CronTrigger{
		config:    cfg,
		scheduler: scheduler,
		logger:    logger,
		now:       time.Now,
	}
}

// Start starts polling
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Charge run trigger started",
		zap.Int("day_of_month", c.config.ChargeDayOfMonth),
		zap.Int("hour", c.config.ChargeHour),
		zap.Duration("check_interval", c.config.CheckInterval),
	)
	return nil
}

// Stop stops polling
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Charge run trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	c.checkAndTrigger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger()
		}
	}
}

// checkAndTrigger submits a run when the slot is open and not yet used.
// Returns true when a job was submitted.
func (c *CronTrigger) checkAndTrigger() bool {
	now := c.now().UTC()
	if now.Day() != c.config.ChargeDayOfMonth || now.Hour() < c.config.ChargeHour {
		return false
	}
	slot := now.Format("2006-01")

	c.mu.Lock()
	if c.lastSlot == slot {
		c.mu.Unlock()
		return false
	}
	c.lastSlot = slot
	c.mu.Unlock()

	job, err := c.scheduler.ScheduleChargeRun(now)
	if err != nil {
		c.logger.Error("Failed to schedule charge run", zap.String("slot", slot), zap.Error(err))
		c.mu.Lock()
		c.lastSlot = ""
		c.mu.Unlock()
		return false
	}
	c.logger.Info("Charge run scheduled", zap.String("slot", slot), zap.String("job_id", job.ID.String()))
	return true
}

// TriggerNow submits a charge run immediately, outside the monthly slot
func (c *CronTrigger) TriggerNow(asOf time.Time) (*Job, error) {
	if asOf.IsZero() {
		asOf = c.now().UTC()
	}
	return c.scheduler.ScheduleChargeRun(asOf)
}
