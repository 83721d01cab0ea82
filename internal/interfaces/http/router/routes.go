package router

import (
	"errors"

	"github.com/gin-gonic/gin"
	_ "github.com/rentals/backend/docs"
	"github.com/rentals/backend/internal/infrastructure/logger"
	"github.com/rentals/backend/internal/infrastructure/metrics"
	"github.com/rentals/backend/internal/interfaces/http/handler"
	"github.com/rentals/backend/internal/interfaces/http/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Handlers are the HTTP handlers of the billing API
type Handlers struct {
	ChargeRuns  *handler.ChargeRunHandler
	Debts       *handler.DebtHandler
	Payments    *handler.PaymentHandler
	CardCharges *handler.CardChargeHandler
	Utilities   *handler.UtilityHandler
	Leases      *handler.LeaseHandler
	Health      *handler.HealthHandler
}

// BillingGroups returns the route groups of the billing API. renterAuth
// guards the routes that act for a renter with a stored card.
func BillingGroups(h Handlers, renterAuth gin.HandlerFunc) []RouteRegistrar {
	billingRoutes := NewDomainGroup("billing", "/billing").
		POST("/charge-runs", h.ChargeRuns.Run)

	debtRoutes := NewDomainGroup("debts", "/debts").
		GET("/outstanding", h.Debts.ListOutstanding).
		GET("/:id", h.Debts.Get)

	renterRoutes := NewDomainGroup("renters", "/renters").
		POST("/:renterId/fees", h.Debts.CreateFee).
		GET("/:renterId/debts", h.Debts.ListForRenter).
		POST("/:renterId/card-charges", renterAuth, h.CardCharges.Charge)

	paymentRoutes := NewDomainGroup("payments", "/payments").
		POST("", h.Payments.Apply).
		GET("/:id", h.Payments.Get).
		GET("/:id/receipt", h.Payments.Receipt)

	// Unit IDs contain a slash, so they are matched as catch-all segments
	utilityRoutes := NewDomainGroup("utilities", "/utilities").
		POST("/readings/:kind", h.Utilities.UploadReadings).
		POST("/readings/:kind/csv", h.Utilities.ImportCSV).
		GET("/units/*unitId", h.Utilities.UnitUsage)

	leaseRoutes := NewDomainGroup("leases", "/leases").
		POST("", h.Leases.Create).
		PUT("/:id/terminate", h.Leases.Terminate).
		GET("/by-unit/*unitId", h.Leases.ActiveForUnit)

	systemRoutes := NewDomainGroup("system", "").
		GET("/health", h.Health.Health)

	return []RouteRegistrar{
		billingRoutes, debtRoutes, renterRoutes, paymentRoutes,
		utilityRoutes, leaseRoutes, systemRoutes,
	}
}

// EngineConfig configures NewEngine
type EngineConfig struct {
	Logger         *zap.Logger
	ServiceName    string
	TracingEnabled bool
	MaxBodySize    int64
	TrustedProxies []string
	Security       middleware.SecurityConfig
	// Metrics is optional; when set, requests are counted and /metrics is served
	Metrics    *metrics.Exporter
	Handlers   Handlers
	RenterAuth gin.HandlerFunc
}

// NewEngine builds the gin engine with the middleware chain and every route.
// /health is served at the root and under /api/v1; /metrics and /swagger at
// the root.
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	if cfg.RenterAuth == nil {
		return nil, errors.New("router: renter auth middleware is required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.ServiceName,
			Enabled:     cfg.TracingEnabled,
		}),
		middleware.SpanAttributes(),
		logger.GinMiddleware(log),
	)
	if cfg.Metrics != nil {
		engine.Use(cfg.Metrics.GinMiddleware())
		engine.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	engine.Use(
		middleware.Secure(cfg.Security),
		middleware.BodyLimit(cfg.MaxBodySize),
	)

	engine.GET("/health", cfg.Handlers.Health.Health)

	// Swagger documentation endpoint
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	NewRouter(engine, WithAPIVersion("v1")).
		Register(BillingGroups(cfg.Handlers, cfg.RenterAuth)...).
		Setup()

	return engine, nil
}
