package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	billingapp "github.com/rentals/backend/internal/application/billing"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/domain/shared"
	"github.com/rentals/backend/internal/infrastructure/auth"
	"github.com/rentals/backend/internal/infrastructure/cache"
	"github.com/rentals/backend/internal/infrastructure/config"
	"github.com/rentals/backend/internal/infrastructure/event"
	"github.com/rentals/backend/internal/infrastructure/gateway"
	"github.com/rentals/backend/internal/infrastructure/logger"
	"github.com/rentals/backend/internal/infrastructure/metrics"
	"github.com/rentals/backend/internal/infrastructure/migration"
	"github.com/rentals/backend/internal/infrastructure/persistence"
	"github.com/rentals/backend/internal/infrastructure/printing"
	"github.com/rentals/backend/internal/infrastructure/scheduler"
	"github.com/rentals/backend/internal/infrastructure/storage"
	"github.com/rentals/backend/internal/infrastructure/telemetry"
	"github.com/rentals/backend/internal/interfaces/http/handler"
	"github.com/rentals/backend/internal/interfaces/http/middleware"
	"github.com/rentals/backend/internal/interfaces/http/router"
	"github.com/rentals/backend/migrations"
)

//	@title			Rentals Billing API
//	@version		1.0
//	@description	Rent, utility and fee ledger for rental properties, with payment allocation and stored-card charges.

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Agent token for one renter. Format: "Bearer {token}"

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	if err := run(cfg, baseLog); err != nil {
		baseLog.Error("Server stopped with error", zap.Error(err))
		_ = baseLog.Sync()
		os.Exit(1)
	}
	_ = baseLog.Sync()
}

func run(cfg *config.Config, baseLog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry: traces, OTLP metrics and the zap log bridge share one config
	telCfg := telemetry.ConfigFrom(cfg.Telemetry)
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, baseLog)
	if err != nil {
		return fmt.Errorf("tracer provider: %w", err)
	}
	defer shutdown(baseLog, "tracer provider", tracerProvider.Shutdown)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, baseLog)
	if err != nil {
		return fmt.Errorf("meter provider: %w", err)
	}
	defer shutdown(baseLog, "meter provider", meterProvider.Shutdown)

	logProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, baseLog)
	if err != nil {
		return fmt.Errorf("logger provider: %w", err)
	}
	defer shutdown(baseLog, "logger provider", logProvider.Shutdown)

	log := logProvider.Bridge(baseLog, zapcore.InfoLevel)
	log.Info("Starting rentals billing",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := plugin.RegisterOtelGorm(db.DB); err != nil {
			return fmt.Errorf("database tracing: %w", err)
		}
	}

	if cfg.Database.AutoMigrate {
		if err := applyMigrations(db, log); err != nil {
			return err
		}
	}

	// Repositories
	unitRepo := persistence.NewGormUnitRepository(db.DB)
	renterRepo := persistence.NewGormRenterRepository(db.DB)
	leaseRepo := persistence.NewGormLeaseRepository(db.DB)
	debtRepo := persistence.NewGormDebtItemRepository(db.DB)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	readingStore := persistence.NewGormReadingStore(db.DB)

	// Metrics: Prometheus for scraping, OTLP instruments for the collector
	exporter := metrics.NewExporter(metrics.DefaultConfig())
	billingMetrics, err := telemetry.NewBillingMetrics(telemetry.BillingMetricsConfig{
		Meter:  meterProvider.Meter("rentals/billing"),
		Logger: log,
		Ledger: debtRepo,
	})
	if err != nil {
		return fmt.Errorf("billing metrics: %w", err)
	}
	billingMetrics.Start(ctx)
	defer billingMetrics.Stop()

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(exporter)
	bus.Subscribe(billingMetrics)
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer shutdown(log, "event bus", bus.Stop)

	// Card gateway behind the idempotency store
	store, err := cache.NewIdempotencyStore(ctx, cfg.Redis, cfg.Gateway.IdempotencyKeyPrefix, cfg.App.Env == "production", log)
	if err != nil {
		return fmt.Errorf("idempotency store: %w", err)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	cardGateway, err := gateway.New(cfg.Gateway, store, log)
	if err != nil {
		return fmt.Errorf("card gateway: %w", err)
	}
	cardGateway.SetRecorder(billingMetrics)

	// Application services
	clock := shared.SystemClock{}
	generator := billingapp.NewChargeGenerator(leaseRepo, unitRepo, debtRepo, readingStore, clock, log)
	generator.SetEventPublisher(bus)

	ledger := billingapp.NewLedgerService(debtRepo, renterRepo, clock, log, cfg.Billing.OutstandingLimit)
	ledger.SetEventPublisher(bus)

	allocator := billingapp.NewPaymentAllocator(debtRepo, paymentRepo, clock, log, billingapp.PaymentAllocatorConfig{
		OverpaymentPolicy: billing.OverpaymentPolicy(cfg.Billing.OverpaymentPolicy),
		MaxAttempts:       cfg.Billing.ConflictRetries,
		Backoff:           cfg.Billing.ConflictBackoff,
	})
	allocator.SetEventPublisher(bus)

	cards := billingapp.NewCardChargeService(renterRepo, debtRepo, cardGateway, allocator, clock, log, cfg.Billing.Currency)
	meters := billingapp.NewMeterReadingService(unitRepo, readingStore, clock, log)
	leases := billingapp.NewLeaseService(leaseRepo, unitRepo, renterRepo, clock, log)
	receipts := billingapp.NewReceiptService(paymentRepo, debtRepo, renterRepo,
		printing.NewReceiptRenderer(printing.Config{Currency: cfg.Billing.Currency, Compress: true}),
		clock, log, cfg.Billing.Currency)

	if cfg.Storage.Enabled {
		archiver, err := storage.NewS3Archiver(ctx, cfg.Storage, log)
		if err != nil {
			return fmt.Errorf("upload archive: %w", err)
		}
		if err := archiver.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("upload archive bucket: %w", err)
		}
		meters.SetArchiver(archiver)
	} else if cfg.App.Env == "development" {
		meters.SetArchiver(storage.NewMemoryArchiver())
	}

	// Monthly charge run
	if cfg.Scheduler.Enabled {
		jobs := scheduler.NewScheduler(scheduler.ConfigFrom(cfg.Scheduler), log)
		jobs.Register(scheduler.JobKindChargeRun, scheduler.NewChargeRunExecutor(generator, log))
		if err := jobs.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer shutdown(log, "scheduler", jobs.Stop)

		trigger := scheduler.NewCronTrigger(scheduler.CronTriggerConfigFrom(cfg.Scheduler), jobs, log)
		if err := trigger.Start(ctx); err != nil {
			return fmt.Errorf("charge run trigger: %w", err)
		}
		defer shutdown(log, "charge run trigger", trigger.Stop)
	}

	// HTTP
	health := handler.NewHealthHandler(cfg.App.Name, version).
		AddCheck("database", db.Ping)

	jwtService := auth.NewJWTService(cfg.JWT)
	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Security: middleware.SecurityConfig{
			HSTSEnabled: cfg.App.Env == "production",
			HSTSMaxAge:  middleware.DefaultSecurityConfig().HSTSMaxAge,
		},
		Metrics: exporter,
		Handlers: router.Handlers{
			ChargeRuns:  handler.NewChargeRunHandler(generator),
			Debts:       handler.NewDebtHandler(ledger),
			Payments:    handler.NewPaymentHandler(allocator, receipts),
			CardCharges: handler.NewCardChargeHandler(cards),
			Utilities:   handler.NewUtilityHandler(meters),
			Leases:      handler.NewLeaseHandler(leases),
			Health:      health,
		},
		RenterAuth: middleware.RenterAuth(middleware.RenterAuthConfig{
			JWTService:  jwtService,
			RenterParam: "renterId",
			Logger:      log,
		}),
	})
	if err != nil {
		return err
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.HTTP.CORSAllowOrigins,
		AllowedMethods:   cfg.HTTP.CORSAllowMethods,
		AllowedHeaders:   cfg.HTTP.CORSAllowHeaders,
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	}).Handler(engine)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        corsHandler,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited gracefully")
	return nil
}

func applyMigrations(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	m, err := migration.NewFromFS(sqlDB, migrations.FS, log)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	// Closing the migrator would close the shared *sql.DB, so it is left open
	if err := m.Up(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// shutdown stops a component with its own deadline, logging failures
func shutdown(log *zap.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		log.Error("Failed to stop "+name, zap.Error(err))
	}
}
