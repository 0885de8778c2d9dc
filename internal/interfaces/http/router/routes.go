package router

import (
	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Handlers are the endpoint groups served by the storefront API
type Handlers struct {
	Orders   *handler.OrderHandler
	Payments *handler.PaymentHandler
	Queries  *handler.QueryHandler
	Webhooks *handler.WebhookHandler
	System   *handler.SystemHandler
}

// Config tunes the engine's middleware chain
type Config struct {
	ServiceName    string
	Logger         *zap.Logger
	Meter          metric.Meter
	TracingEnabled bool
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
	// WebhookLimiter throttles deliveries per source; nil disables it
	WebhookLimiter *middleware.KeyedLimiter
}

// NewEngine builds the gin engine with the middleware chain and every route
func NewEngine(cfg Config, h Handlers) (*gin.Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(cfg.Logger),
		logger.Recovery(cfg.Logger),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
		middleware.TracingWithConfig(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		middleware.SpanAttributes(),
		middleware.HTTPMetrics(cfg.Meter, cfg.Logger),
		middleware.BodyLimit(cfg.MaxBodySize),
	)

	engine.GET("/health", h.System.Health)

	routes := mount(engine.Group(apiPrefix),
		systemRoutes(h),
		orderRoutes(h),
		paymentRoutes(h),
		webhookRoutes(h, cfg.WebhookLimiter),
	)
	cfg.Logger.Debug("API routes registered", zap.Strings("routes", routes))
	return engine, nil
}

func systemRoutes(h Handlers) *resource {
	return newResource("/system").
		get("/info", h.System.Info).
		get("/ping", h.System.Ping)
}

func orderRoutes(h Handlers) *resource {
	return newResource("/orders", middleware.StoreScope()).
		post("", h.Orders.Create).
		get("", h.Orders.List).
		get("/analytics", h.Queries.Analytics).
		get("/export", h.Queries.Export).
		get("/:id", h.Orders.Get).
		patch("/:id", h.Orders.Update).
		post("/:id/status", h.Orders.TransitionStatus).
		post("/:id/cancel", h.Orders.Cancel).
		get("/:id/timeline", h.Queries.Timeline).
		post("/:id/payment-intents", h.Payments.CreateIntent).
		get("/:id/payments", h.Payments.ListForOrder)
}

func paymentRoutes(h Handlers) *resource {
	return newResource("/payments", middleware.StoreScope()).
		get("/:id", h.Payments.Get).
		post("/:id/confirm", h.Payments.Confirm).
		post("/:id/refunds", h.Payments.RequestRefund).
		get("/:id/refunds", h.Payments.ListRefunds)
}

// Webhooks carry no store header; the store comes from the verified event.
func webhookRoutes(h Handlers, limiter *middleware.KeyedLimiter) *resource {
	var mw []gin.HandlerFunc
	if limiter != nil {
		mw = append(mw, middleware.RateLimitByParam(limiter, "source"))
	}
	return newResource("/webhooks", mw...).post("/:source", h.Webhooks.Receive)
}
