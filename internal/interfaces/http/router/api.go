package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/interfaces/http/handler"
	"github.com/erp/ordersync/internal/interfaces/http/middleware"
)

// Handlers bundles the handlers mounted by NewEngine
type Handlers struct {
	Sync   *handler.SyncHandler
	Orders *handler.OrderHandler
	Report *handler.ReportHandler
	System *handler.SystemHandler
}

// EngineConfig holds the HTTP surface settings
type EngineConfig struct {
	ServiceName    string
	TracingEnabled bool
	MaxBodySize    int64
	TrustedProxies []string

	// SyncTriggerInterval and SyncTriggerBurst limit POST /sync/runs per client
	SyncTriggerInterval time.Duration
	SyncTriggerBurst    int
}

// NewEngine builds the gin engine with the middleware chain and every route
func NewEngine(cfg EngineConfig, h Handlers, log *zap.Logger) (*gin.Engine, error) {
	if err := middleware.SetupValidator(); err != nil {
		return nil, err
	}

	engine := gin.New()
	if len(cfg.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Tracing runs before the access log so request logs carry trace ids
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.ServiceName,
		Enabled:     cfg.TracingEnabled,
	}))
	engine.Use(middleware.SpanAttributes())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.BodyLimit(cfg.MaxBodySize))

	engine.GET("/health", h.System.Health)

	triggerLimiter := middleware.NewRateLimiter(cfg.SyncTriggerInterval, cfg.SyncTriggerBurst)

	syncRoutes := NewDomainGroup("sync", "/sync")
	syncRoutes.POST("/runs", middleware.RateLimit(triggerLimiter), h.Sync.RunSync)
	syncRoutes.GET("/runs", h.Sync.ListRuns)
	syncRoutes.GET("/status", h.Sync.GetStatus)
	syncRoutes.POST("/orders", h.Sync.SyncOrders)

	orderRoutes := NewDomainGroup("orders", "/orders")
	orderRoutes.GET("/:order_id", h.Orders.GetOrder)
	orderRoutes.PATCH("/:order_id/note", h.Orders.UpdateNote)

	reportRoutes := NewDomainGroup("reports", "/reports")
	reportRoutes.GET("/sales-rollup", h.Report.GetSalesRollup)

	systemRoutes := NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", h.System.GetSystemInfo)
	systemRoutes.GET("/ping", h.System.Ping)

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Register(syncRoutes).
		Register(orderRoutes).
		Register(reportRoutes).
		Register(systemRoutes)
	api := r.Setup()
	api.GET("/health", h.System.Health)

	return engine, nil
}
